package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spread-cli/internal/session"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT document FROM sessions WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	sess := session.New("ACME", "ACME Inc", "0000123456")

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(sess.ID, "ACME", "ACME Inc", "", false, 0,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutSession(context.Background(), sess)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	sess := session.New("ACME", "ACME Inc", "")

	mock.ExpectExec(`UPDATE sessions SET`).
		WithArgs(false, 0, pgxmock.AnyArg(), pgxmock.AnyArg(), sess.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateSession(context.Background(), sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession_RoundTrip(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	sess := session.New("ACME", "ACME Inc", "")
	sess.Raw["revenue"] = session.ExtractedValue{
		MetricKey: "revenue", DisplayName: "Revenue", Value: 1000, ValuePrior: 900, Editable: true,
	}
	doc, err := json.Marshal(sess)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT document FROM sessions WHERE id = \$1`).
		WithArgs(sess.ID).
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(doc))

	got, err := s.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACME", got.Ticker)
	assert.Equal(t, sess.Raw["revenue"], got.Raw["revenue"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSessions_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	approved := true
	mock.ExpectQuery(`SELECT id, ticker, company_name, fiscal_year_end, approved, edit_count, created_at, updated_at`).
		WithArgs("ACME", true, 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "ticker", "company_name", "fiscal_year_end", "approved", "edit_count", "created_at", "updated_at",
		}).AddRow("sess-1", "ACME", "ACME Inc", "2025-12-31", true, 2, now, now))

	infos, err := s.ListSessions(context.Background(), SessionFilter{Ticker: "ACME", Approved: &approved})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "sess-1", infos[0].ID)
	assert.True(t, infos[0].Approved)
	assert.Equal(t, 2, infos[0].EditCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSnapshot(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO snapshots`).
		WithArgs(pgxmock.AnyArg(), "sess-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	snap := &Snapshot{
		SessionID: "sess-1",
		Overlay:   map[string]session.OverlayEntry{},
	}
	err := s.SaveSnapshot(context.Background(), snap)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.False(t, snap.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSnapshot_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, session_id, overlay, results, created_at FROM snapshots`).
		WithArgs("sess-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSnapshot(context.Background(), "sess-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
