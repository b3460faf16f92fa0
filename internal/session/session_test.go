package session

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spread-cli/internal/schema"
)

func ptr(v float64) *float64 { return &v }

func newTestSession(t *testing.T) *Session {
	t.Helper()
	sess, err := FromExtraction(ExtractionResult{
		Ticker:        "ACME",
		CompanyName:   "Acme Corp",
		CIK:           "0000123456",
		FiscalYearEnd: "2025-12-31",
		RawValues: map[string]ExtractedValue{
			"revenue":         {Value: 1000, ValuePrior: 900, Editable: true},
			"cost_of_revenue": {Value: 400, ValuePrior: 380, Editable: true},
			"gross_profit":    {Value: 600, ValuePrior: 520, Editable: true},
			"net_income":      {Value: 120, ValuePrior: 95, Editable: false},
		},
	})
	require.NoError(t, err)
	return sess
}

func TestFromExtraction(t *testing.T) {
	sess := newTestSession(t)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "ACME", sess.Ticker)
	assert.Equal(t, schema.Version, sess.SchemaVersion)
	assert.False(t, sess.Approved)
	assert.Len(t, sess.Raw, 4)

	// Missing display names are filled from the canonical table.
	assert.Equal(t, "Top Line Revenue", sess.Raw["revenue"].DisplayName)
	assert.Equal(t, "revenue", sess.Raw["revenue"].MetricKey)
}

func TestFromExtraction_UnknownKey(t *testing.T) {
	_, err := FromExtraction(ExtractionResult{
		CompanyName: "Acme Corp",
		RawValues: map[string]ExtractedValue{
			"free_cash_flow": {Value: 100},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestResolvePrecedence(t *testing.T) {
	sess := newTestSession(t)

	v, ok := sess.Resolve("revenue", schema.PeriodCurrent)
	require.True(t, ok)
	assert.Equal(t, 1000.0, v)

	require.NoError(t, sess.ApplyEdit(Edit{MetricKey: "revenue", Value: ptr(1100)}))

	// Overlay wins for the overridden period only.
	v, ok = sess.Resolve("revenue", schema.PeriodCurrent)
	require.True(t, ok)
	assert.Equal(t, 1100.0, v)

	v, ok = sess.Resolve("revenue", schema.PeriodPrior)
	require.True(t, ok)
	assert.Equal(t, 900.0, v)

	// Raw stays untouched underneath.
	raw, ok := sess.RawValue("revenue", schema.PeriodCurrent)
	require.True(t, ok)
	assert.Equal(t, 1000.0, raw)
}

func TestResolveMissing(t *testing.T) {
	sess := newTestSession(t)

	_, ok := sess.Resolve("inventories", schema.PeriodCurrent)
	assert.False(t, ok)
	assert.Equal(t, 0.0, sess.ResolveOrZero("inventories", schema.PeriodCurrent))

	// An override on a key the extractor never produced still resolves.
	require.NoError(t, sess.ApplyEdit(Edit{MetricKey: "inventories", Value: ptr(50)}))
	v, ok := sess.Resolve("inventories", schema.PeriodCurrent)
	require.True(t, ok)
	assert.Equal(t, 50.0, v)
}

func TestClearRestoresRaw(t *testing.T) {
	sess := newTestSession(t)

	require.NoError(t, sess.ApplyEdit(Edit{MetricKey: "revenue", Value: ptr(1100), ValuePrior: ptr(950)}))
	require.NoError(t, sess.ApplyEdit(Edit{MetricKey: "revenue", ClearValue: true}))

	v, _ := sess.Resolve("revenue", schema.PeriodCurrent)
	assert.Equal(t, 1000.0, v, "clearing the current override restores the raw value")

	v, _ = sess.Resolve("revenue", schema.PeriodPrior)
	assert.Equal(t, 950.0, v, "prior override survives clearing current")

	require.NoError(t, sess.ApplyEdit(Edit{MetricKey: "revenue", ClearValuePrior: true}))
	assert.Equal(t, 0, sess.Overlay.Len(), "entry dropped once both fields clear")
}

func TestApplyEdit_Rejections(t *testing.T) {
	sess := newTestSession(t)

	t.Run("unknown key", func(t *testing.T) {
		err := sess.ApplyEdit(Edit{MetricKey: "free_cash_flow", Value: ptr(1)})
		assert.ErrorIs(t, err, ErrUnknownMetric)
	})

	t.Run("locked line item", func(t *testing.T) {
		err := sess.ApplyEdit(Edit{MetricKey: "net_income", Value: ptr(1)})
		assert.ErrorIs(t, err, ErrNotEditable)
	})

	t.Run("non-finite value", func(t *testing.T) {
		err := sess.ApplyEdit(Edit{MetricKey: "revenue", Value: ptr(math.NaN())})
		assert.ErrorIs(t, err, ErrInvalidValue)
		err = sess.ApplyEdit(Edit{MetricKey: "revenue", ValuePrior: ptr(math.Inf(1))})
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("valid value paired with non-finite prior", func(t *testing.T) {
		err := sess.ApplyEdit(Edit{MetricKey: "revenue", Value: ptr(1100), ValuePrior: ptr(math.NaN())})
		assert.ErrorIs(t, err, ErrInvalidValue)
		_, ok := sess.Overlay.Get("revenue", schema.PeriodCurrent)
		assert.False(t, ok, "the valid half of a rejected edit must not land")
	})

	assert.Equal(t, 0, sess.Overlay.Len(), "rejected edits leave the overlay unchanged")
}

func TestApplyEdits_StopsAtFirstInvalid(t *testing.T) {
	sess := newTestSession(t)

	err := sess.ApplyEdits([]Edit{
		{MetricKey: "revenue", Value: ptr(1100)},
		{MetricKey: "free_cash_flow", Value: ptr(1)},
		{MetricKey: "gross_profit", Value: ptr(700)},
	})
	require.Error(t, err)

	// The first edit landed, the one after the failure did not.
	_, ok := sess.Overlay.Get("revenue", schema.PeriodCurrent)
	assert.True(t, ok)
	_, ok = sess.Overlay.Get("gross_profit", schema.PeriodCurrent)
	assert.False(t, ok)
}

func TestIsEdited(t *testing.T) {
	sess := newTestSession(t)

	assert.False(t, sess.IsEdited("revenue", schema.PeriodCurrent))

	require.NoError(t, sess.ApplyEdit(Edit{MetricKey: "revenue", Value: ptr(1100)}))
	assert.True(t, sess.IsEdited("revenue", schema.PeriodCurrent))
	assert.False(t, sess.IsEdited("revenue", schema.PeriodPrior))

	// An override equal to the raw value is not an edit.
	require.NoError(t, sess.ApplyEdit(Edit{MetricKey: "gross_profit", Value: ptr(600)}))
	assert.False(t, sess.IsEdited("gross_profit", schema.PeriodCurrent))

	// Overrides without a raw counterpart never count as edits.
	require.NoError(t, sess.ApplyEdit(Edit{MetricKey: "inventories", Value: ptr(50)}))
	assert.False(t, sess.IsEdited("inventories", schema.PeriodCurrent))
}

func TestApprove(t *testing.T) {
	sess := newTestSession(t)
	require.NoError(t, sess.ApplyEdit(Edit{MetricKey: "revenue", Value: ptr(1100)}))

	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	snap := sess.Approve(now)

	assert.True(t, sess.Approved)
	require.NotNil(t, sess.ApprovedAt)
	assert.Equal(t, now, *sess.ApprovedAt)

	require.Contains(t, snap, "revenue")
	require.NotNil(t, snap["revenue"].Value)
	assert.Equal(t, 1100.0, *snap["revenue"].Value)

	// The snapshot is decoupled from later overlay changes.
	require.NoError(t, sess.Overlay.Set("revenue", schema.PeriodCurrent, 1200))
	assert.Equal(t, 1100.0, *snap["revenue"].Value)
}

func TestOverlayJSONRoundTrip(t *testing.T) {
	o := NewEditOverlay()
	require.NoError(t, o.Set("revenue", schema.PeriodCurrent, 1100))
	require.NoError(t, o.Set("revenue", schema.PeriodPrior, 950))
	require.NoError(t, o.Set("cash", schema.PeriodCurrent, 500))

	data, err := json.Marshal(o)
	require.NoError(t, err)

	var back EditOverlay
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, 2, back.Len())
	v, ok := back.Get("revenue", schema.PeriodPrior)
	require.True(t, ok)
	assert.Equal(t, 950.0, v)
	v, ok = back.Get("cash", schema.PeriodCurrent)
	require.True(t, ok)
	assert.Equal(t, 500.0, v)
	_, ok = back.Get("cash", schema.PeriodPrior)
	assert.False(t, ok)
}

func TestSessionJSONRoundTrip(t *testing.T) {
	sess := newTestSession(t)
	require.NoError(t, sess.ApplyEdit(Edit{MetricKey: "revenue", Value: ptr(1100)}))

	data, err := json.Marshal(sess)
	require.NoError(t, err)

	var back Session
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, sess.ID, back.ID)
	assert.Equal(t, sess.Ticker, back.Ticker)
	require.NotNil(t, back.Overlay)

	v, ok := back.Resolve("revenue", schema.PeriodCurrent)
	require.True(t, ok)
	assert.Equal(t, 1100.0, v)
	v, ok = back.Resolve("gross_profit", schema.PeriodCurrent)
	require.True(t, ok)
	assert.Equal(t, 600.0, v)
}
