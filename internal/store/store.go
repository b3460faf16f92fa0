// Package store persists review sessions and their approved snapshots behind
// a backend-neutral interface. SQLite serves single-analyst desktop use;
// Postgres serves the shared server deployment.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spread-cli/internal/calc"
	"github.com/sells-group/spread-cli/internal/session"
)

// ErrNotFound is returned when a session or snapshot id matches nothing.
var ErrNotFound = eris.New("store: not found")

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Ticker   string `json:"ticker,omitempty"`
	Approved *bool  `json:"approved,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// SessionInfo is the listing row: identity and review status without the
// full value document.
type SessionInfo struct {
	ID            string    `json:"session_id"`
	Ticker        string    `json:"ticker"`
	CompanyName   string    `json:"company_name"`
	FiscalYearEnd string    `json:"fiscal_year_end"`
	Approved      bool      `json:"approved"`
	EditCount     int       `json:"edit_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Snapshot is one approval record: the overlay frozen at approval time plus
// the results computed from it.
type Snapshot struct {
	ID        string                          `json:"snapshot_id"`
	SessionID string                          `json:"session_id"`
	Overlay   map[string]session.OverlayEntry `json:"overlay"`
	Results   *calc.Results                   `json:"results"`
	CreatedAt time.Time                       `json:"created_at"`
}

// Store defines the persistence interface for the review workflow.
type Store interface {
	// Sessions
	PutSession(ctx context.Context, s *session.Session) error
	UpdateSession(ctx context.Context, s *session.Session) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]SessionInfo, error)

	// Approval snapshots
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	GetSnapshot(ctx context.Context, sessionID string) (*Snapshot, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
