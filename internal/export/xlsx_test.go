package export

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spread-cli/internal/calc"
	"github.com/sells-group/spread-cli/internal/session"
)

func newExportSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New("ACME", "ACME Inc", "0000123456")
	sess.FiscalYearEnd = "2025-12-31"
	sess.FiscalYearEndPrior = "2024-12-31"

	values := map[string][2]float64{
		"revenue":                   {1000, 900},
		"cost_of_revenue":           {400, 380},
		"gross_profit":              {600, 520},
		"operating_income":          {200, 170},
		"depreciation_amortization": {50, 45},
		"interest_expense":          {20, 22},
		"net_income":                {120, 100},
		"stock_compensation":        {30, 25},
		"cash":                      {250, 200},
		"accounts_receivable":       {110, 95},
		"current_assets":            {500, 430},
		"current_liabilities":       {250, 240},
		"total_assets":              {1500, 1400},
		"total_liabilities":         {900, 880},
		"stockholders_equity":       {600, 520},
		"total_debt":                {400, 420},
		"intangible_assets":         {80, 85},
		"goodwill":                  {120, 120},
	}
	for key, v := range values {
		sess.Raw[key] = session.ExtractedValue{
			MetricKey:  key,
			Value:      v[0],
			ValuePrior: v[1],
			Editable:   true,
		}
	}
	return sess
}

func TestWorkbook_Sheets(t *testing.T) {
	sess := newExportSession(t)
	results := calc.Engine{}.Recompute(sess)

	f, err := Workbook(sess, results)
	require.NoError(t, err)

	for _, name := range []string{
		"Raw Values", "Income Statement", "Balance Sheet", "Cash Flow",
		"Calculated Metrics", "Ratios", "Verification", "Audit Log",
	} {
		_, ok := f.Sheet[name]
		assert.True(t, ok, "missing sheet %s", name)
	}
}

func TestWorkbook_RawValuesResolved(t *testing.T) {
	sess := newExportSession(t)
	require.NoError(t, sess.ApplyEdit(session.Edit{MetricKey: "revenue", Value: ptr(1100.0)}))
	results := calc.Engine{}.Recompute(sess)

	f, err := Workbook(sess, results)
	require.NoError(t, err)

	sheet := f.Sheet["Raw Values"]
	require.NotNil(t, sheet)

	// Revenue is the first income statement row; the overlay value must win
	// and the row must be flagged as edited.
	row := sheet.Rows[1]
	cur, err := row.Cells[1].Float()
	require.NoError(t, err)
	assert.Equal(t, 1100.0, cur)
	assert.Equal(t, "yes", row.Cells[3].Value)
}

func TestWorkbook_MetricFormulas(t *testing.T) {
	sess := newExportSession(t)
	results := calc.Engine{}.Recompute(sess)

	f, err := Workbook(sess, results)
	require.NoError(t, err)

	sheet := f.Sheet["Calculated Metrics"]
	require.NotNil(t, sheet)

	// Row 2 is top_line_revenue: a pass-through of the raw revenue cell.
	formula := sheet.Rows[1].Cells[1].Formula()
	assert.Equal(t, "'Raw Values'!B2", formula)

	// Every metric row carries a delta formula in column D.
	for _, row := range sheet.Rows[1:] {
		assert.NotEmpty(t, row.Cells[3].Formula())
	}
}

func TestWorkbook_PassThroughFormulasPointAtRawValues(t *testing.T) {
	sess := newExportSession(t)
	results := calc.Engine{}.Recompute(sess)

	f, err := Workbook(sess, results)
	require.NoError(t, err)

	sheet := f.Sheet["Calculated Metrics"]
	require.NotNil(t, sheet)

	// Gross profit passes the reported figure through; its formula must
	// reference the raw cell, not the metric's own row. Raw Values rows:
	// header, revenue(2), cost_of_revenue(3), gross_profit(4),
	// operating_income(5), d&a(6), interest(7), net_income(8).
	assert.Equal(t, "'Raw Values'!B4", sheet.Rows[2].Cells[1].Formula())
	assert.Equal(t, "'Raw Values'!C4", sheet.Rows[2].Cells[2].Formula())

	// Net income is always a pass-through of the reported line item.
	assert.Equal(t, "'Raw Values'!B8", sheet.Rows[10].Cells[1].Formula())

	// No derived cell anywhere may reference its own address.
	for _, name := range []string{"Calculated Metrics", "Ratios"} {
		sheet := f.Sheet[name]
		require.NotNil(t, sheet)
		for i, row := range sheet.Rows {
			if len(row.Cells) < 3 {
				continue
			}
			for col, cell := range map[string]int{"B": 1, "C": 2} {
				self := fmt.Sprintf("%s%d", col, i+1)
				assert.NotEqual(t, self, row.Cells[cell].Formula(),
					"%s row %d column %s references itself", name, i+1, col)
			}
		}
	}
}

func TestWorkbook_RatioFormulasCrossSheet(t *testing.T) {
	sess := newExportSession(t)
	results := calc.Engine{}.Recompute(sess)

	f, err := Workbook(sess, results)
	require.NoError(t, err)

	sheet := f.Sheet["Ratios"]
	require.NotNil(t, sheet)

	// Ratios referencing derived metrics point at the Calculated Metrics
	// sheet rather than embedding constants.
	var found bool
	for _, row := range sheet.Rows[1:] {
		if len(row.Cells) > 1 && row.Cells[0].Value == "EBITDA Interest Coverage" {
			found = true
			assert.Contains(t, row.Cells[1].Formula(), "'Calculated Metrics'!")
			assert.Contains(t, row.Cells[1].Formula(), "'Raw Values'!")
		}
	}
	assert.True(t, found, "ebitda_interest_coverage row not present")
}

func TestWrite_File(t *testing.T) {
	sess := newExportSession(t)
	results := calc.Engine{}.Recompute(sess)

	path := filepath.Join(t.TempDir(), Filename(sess))
	require.NoError(t, Write(path, sess, results))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestFilename(t *testing.T) {
	sess := session.New("ACME", "ACME Inc", "")
	sess.FiscalYearEnd = "2025-12-31"
	assert.Equal(t, "ACME_2025-12-31_spread.xlsx", Filename(sess))

	anon := session.New("", "Private Co", "")
	assert.Equal(t, anon.ID+"_spread.xlsx", Filename(anon))
}

func ptr(v float64) *float64 { return &v }
