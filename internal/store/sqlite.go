package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/spread-cli/internal/session"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	ticker          TEXT NOT NULL,
	company_name    TEXT NOT NULL,
	fiscal_year_end TEXT NOT NULL DEFAULT '',
	approved        INTEGER NOT NULL DEFAULT 0,
	edit_count      INTEGER NOT NULL DEFAULT 0,
	document        TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	overlay    TEXT NOT NULL,
	results    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_ticker ON sessions(ticker);
CREATE INDEX IF NOT EXISTS idx_sessions_approved ON sessions(approved);
CREATE INDEX IF NOT EXISTS idx_snapshots_session_id ON snapshots(session_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutSession(ctx context.Context, sess *session.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, ticker, company_name, fiscal_year_end, approved, edit_count, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Ticker, sess.CompanyName, sess.FiscalYearEnd,
		boolToInt(sess.Approved), sess.Overlay.Len(), string(doc), sess.CreatedAt, now,
	)
	return eris.Wrapf(err, "sqlite: insert session %s", sess.ID)
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *session.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal session")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET approved = ?, edit_count = ?, document = ?, updated_at = ? WHERE id = ?`,
		boolToInt(sess.Approved), sess.Overlay.Len(), string(doc), time.Now().UTC(), sess.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session %s", sess.ID)
	}
	return checkRowsAffected(res, "session", sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM sessions WHERE id = ?`, id,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}

	var sess session.Session
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal session")
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]SessionInfo, error) {
	query := `SELECT id, ticker, company_name, fiscal_year_end, approved, edit_count, created_at, updated_at
	          FROM sessions WHERE 1=1`
	var args []any

	if filter.Ticker != "" {
		query += ` AND ticker = ?`
		args = append(args, filter.Ticker)
	}
	if filter.Approved != nil {
		query += ` AND approved = ?`
		args = append(args, boolToInt(*filter.Approved))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var approved int
		if err := rows.Scan(&info.ID, &info.Ticker, &info.CompanyName, &info.FiscalYearEnd,
			&approved, &info.EditCount, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		info.Approved = approved != 0
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}

	overlayJSON, err := json.Marshal(snap.Overlay)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal overlay")
	}
	resultsJSON, err := json.Marshal(snap.Results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal results")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, session_id, overlay, results, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.SessionID, string(overlayJSON), string(resultsJSON), snap.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert snapshot for session %s", snap.SessionID)
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, overlay, results, created_at FROM snapshots
		 WHERE session_id = ?
		 ORDER BY created_at DESC LIMIT 1`,
		sessionID,
	)
	return scanSnapshot(row, sessionID)
}

// helpers

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scannable, sessionID string) (*Snapshot, error) {
	var snap Snapshot
	var overlayJSON string
	var resultsJSON sql.NullString

	err := row.Scan(&snap.ID, &snap.SessionID, &overlayJSON, &resultsJSON, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "snapshot for session %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan snapshot")
	}

	if err := json.Unmarshal([]byte(overlayJSON), &snap.Overlay); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal overlay")
	}
	if resultsJSON.Valid && resultsJSON.String != "null" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &snap.Results); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal results")
		}
	}
	return &snap, nil
}
