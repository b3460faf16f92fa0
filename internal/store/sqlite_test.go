package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spread-cli/internal/calc"
	"github.com/sells-group/spread-cli/internal/schema"
	"github.com/sells-group/spread-cli/internal/session"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "spread.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestSession(t *testing.T, ticker string) *session.Session {
	t.Helper()
	sess := session.New(ticker, ticker+" Inc", "0000123456")
	sess.FiscalYearEnd = "2025-12-31"
	sess.FiscalYearEndPrior = "2024-12-31"
	sess.Raw["revenue"] = session.ExtractedValue{
		MetricKey:   "revenue",
		DisplayName: "Revenue",
		Value:       1000,
		ValuePrior:  900,
		Editable:    true,
	}
	sess.Raw["cost_of_revenue"] = session.ExtractedValue{
		MetricKey:   "cost_of_revenue",
		DisplayName: "Cost of Revenue",
		Value:       400,
		ValuePrior:  380,
		Editable:    true,
	}
	return sess
}

func TestSQLiteStore_SessionRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := newTestSession(t, "ACME")
	require.NoError(t, sess.ApplyEdit(session.Edit{MetricKey: "revenue", Value: ptr(1100.0)}))
	require.NoError(t, s.PutSession(ctx, sess))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "ACME", got.Ticker)
	assert.Equal(t, "ACME Inc", got.CompanyName)
	assert.Equal(t, sess.Raw["revenue"], got.Raw["revenue"])

	// The overlay survives persistence, including resolution precedence.
	v, ok := got.Resolve("revenue", schema.PeriodCurrent)
	require.True(t, ok)
	assert.Equal(t, 1100.0, v)
	v, ok = got.Resolve("revenue", schema.PeriodPrior)
	require.True(t, ok)
	assert.Equal(t, 900.0, v)
}

func TestSQLiteStore_GetSession_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetSession(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpdateSession(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := newTestSession(t, "ACME")
	require.NoError(t, s.PutSession(ctx, sess))

	sess.Approve(time.Now())
	require.NoError(t, s.UpdateSession(ctx, sess))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)
	require.NotNil(t, got.ApprovedAt)
}

func TestSQLiteStore_UpdateSession_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	sess := newTestSession(t, "GHOST")
	err := s.UpdateSession(context.Background(), sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListSessions(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	a := newTestSession(t, "ACME")
	b := newTestSession(t, "BETA")
	b.Approve(time.Now())
	require.NoError(t, s.PutSession(ctx, a))
	require.NoError(t, s.PutSession(ctx, b))

	t.Run("all", func(t *testing.T) {
		infos, err := s.ListSessions(ctx, SessionFilter{})
		require.NoError(t, err)
		assert.Len(t, infos, 2)
	})

	t.Run("by ticker", func(t *testing.T) {
		infos, err := s.ListSessions(ctx, SessionFilter{Ticker: "ACME"})
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, a.ID, infos[0].ID)
		assert.False(t, infos[0].Approved)
	})

	t.Run("by approved", func(t *testing.T) {
		approved := true
		infos, err := s.ListSessions(ctx, SessionFilter{Approved: &approved})
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, b.ID, infos[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		infos, err := s.ListSessions(ctx, SessionFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, infos, 1)
	})
}

func TestSQLiteStore_SnapshotRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := newTestSession(t, "ACME")
	require.NoError(t, sess.ApplyEdit(session.Edit{MetricKey: "revenue", Value: ptr(1100.0)}))
	require.NoError(t, s.PutSession(ctx, sess))

	results := calc.Engine{}.Recompute(sess)
	snap := &Snapshot{
		SessionID: sess.ID,
		Overlay:   sess.Approve(time.Now()),
		Results:   results,
	}
	require.NoError(t, s.SaveSnapshot(ctx, snap))
	assert.NotEmpty(t, snap.ID)

	got, err := s.GetSnapshot(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, sess.ID, got.SessionID)
	require.Contains(t, got.Overlay, "revenue")
	require.NotNil(t, got.Overlay["revenue"].Value)
	assert.Equal(t, 1100.0, *got.Overlay["revenue"].Value)
	require.NotNil(t, got.Results)
	assert.Equal(t, results.Metrics.GrossProfit, got.Results.Metrics.GrossProfit)
}

func TestSQLiteStore_GetSnapshot_Latest(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	sess := newTestSession(t, "ACME")
	require.NoError(t, s.PutSession(ctx, sess))

	older := &Snapshot{SessionID: sess.ID, Overlay: map[string]session.OverlayEntry{}, CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := &Snapshot{SessionID: sess.ID, Overlay: map[string]session.OverlayEntry{}, CreatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveSnapshot(ctx, older))
	require.NoError(t, s.SaveSnapshot(ctx, newer))

	got, err := s.GetSnapshot(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
}

func TestSQLiteStore_GetSnapshot_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetSnapshot(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func ptr(v float64) *float64 { return &v }
