package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/spread-cli/internal/session"
)

// Pool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_session":  `INSERT INTO sessions (id, ticker, company_name, fiscal_year_end, approved, edit_count, document, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"update_session":  `UPDATE sessions SET approved = $1, edit_count = $2, document = $3, updated_at = $4 WHERE id = $5`,
	"get_session":     `SELECT document FROM sessions WHERE id = $1`,
	"insert_snapshot": `INSERT INTO snapshots (id, session_id, overlay, results, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"get_snapshot":    `SELECT id, session_id, overlay, results, created_at FROM snapshots WHERE session_id = $1 ORDER BY created_at DESC LIMIT 1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	ticker          TEXT NOT NULL,
	company_name    TEXT NOT NULL,
	fiscal_year_end TEXT NOT NULL DEFAULT '',
	approved        BOOLEAN NOT NULL DEFAULT false,
	edit_count      INTEGER NOT NULL DEFAULT 0,
	document        JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	overlay    JSONB NOT NULL,
	results    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_ticker ON sessions(ticker);
CREATE INDEX IF NOT EXISTS idx_sessions_approved ON sessions(approved);
CREATE INDEX IF NOT EXISTS idx_snapshots_session_id ON snapshots(session_id);
CREATE INDEX IF NOT EXISTS idx_snapshots_session_created ON snapshots(session_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) PutSession(ctx context.Context, sess *session.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, ticker, company_name, fiscal_year_end, approved, edit_count, document, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sess.ID, sess.Ticker, sess.CompanyName, sess.FiscalYearEnd,
		sess.Approved, sess.Overlay.Len(), doc, sess.CreatedAt, now,
	)
	return eris.Wrapf(err, "postgres: insert session %s", sess.ID)
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *session.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal session")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET approved = $1, edit_count = $2, document = $3, updated_at = $4 WHERE id = $5`,
		sess.Approved, sess.Overlay.Len(), doc, time.Now().UTC(), sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session %s", sess.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", sess.ID)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM sessions WHERE id = $1`, id,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "session %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}

	var sess session.Session
	if err := json.Unmarshal(doc, &sess); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal session")
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionInfo, error) {
	query := `SELECT id, ticker, company_name, fiscal_year_end, approved, edit_count, created_at, updated_at
	          FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Ticker != "" {
		query += fmt.Sprintf(` AND ticker = $%d`, argIdx)
		args = append(args, filter.Ticker)
		argIdx++
	}
	if filter.Approved != nil {
		query += fmt.Sprintf(` AND approved = $%d`, argIdx)
		args = append(args, *filter.Approved)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.Ticker, &info.CompanyName, &info.FiscalYearEnd,
			&info.Approved, &info.EditCount, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	overlayJSON, err := json.Marshal(snap.Overlay)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal overlay")
	}
	resultsJSON, err := json.Marshal(snap.Results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, session_id, overlay, results, created_at) VALUES ($1, $2, $3, $4, $5)`,
		snap.ID, snap.SessionID, overlayJSON, resultsJSON, snap.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert snapshot for session %s", snap.SessionID)
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	var snap Snapshot
	var overlayJSON, resultsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, overlay, results, created_at FROM snapshots
		 WHERE session_id = $1
		 ORDER BY created_at DESC LIMIT 1`,
		sessionID,
	).Scan(&snap.ID, &snap.SessionID, &overlayJSON, &resultsJSON, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "snapshot for session %s", sessionID)
		}
		return nil, eris.Wrapf(err, "postgres: get snapshot for session %s", sessionID)
	}

	if err := json.Unmarshal(overlayJSON, &snap.Overlay); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal overlay")
	}
	if len(resultsJSON) > 0 && string(resultsJSON) != "null" {
		if err := json.Unmarshal(resultsJSON, &snap.Results); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal results")
		}
	}
	return &snap, nil
}
