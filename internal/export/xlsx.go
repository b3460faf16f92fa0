// Package export renders an approved review session into an XLSX workbook.
// Calculated cells carry live spreadsheet formulas referencing the raw value
// rows, so the derivation chain stays auditable and editable after export.
package export

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/spread-cli/internal/calc"
	"github.com/sells-group/spread-cli/internal/schema"
	"github.com/sells-group/spread-cli/internal/session"
)

const (
	sheetRawValues    = "Raw Values"
	sheetMetrics      = "Calculated Metrics"
	sheetRatios       = "Ratios"
	sheetVerification = "Verification"
	sheetAuditLog     = "Audit Log"
)

// Filename returns the workbook name for a session.
func Filename(sess *session.Session) string {
	base := sess.Ticker
	if base == "" {
		base = sess.ID
	}
	if sess.FiscalYearEnd != "" {
		return fmt.Sprintf("%s_%s_spread.xlsx", base, sess.FiscalYearEnd)
	}
	return fmt.Sprintf("%s_spread.xlsx", base)
}

// Write renders the session and its results to an XLSX file at path.
func Write(path string, sess *session.Session, results *calc.Results) error {
	f, err := Workbook(sess, results)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// cellRef locates the current-period cell holding a metric key's value.
// Prior-period values live one column to the right on the same row.
type cellRef struct {
	sheet string
	row   int
}

// Workbook builds the full workbook: raw values with citations, one sheet
// per statement, calculated metrics and ratios with live formulas, the
// verification report, and the calculation audit log.
func Workbook(sess *session.Session, results *calc.Results) (*xlsx.File, error) {
	f := xlsx.NewFile()
	refs := make(map[string]cellRef)

	if err := addRawValuesSheet(f, sess, refs); err != nil {
		return nil, err
	}
	for _, statement := range []string{schema.StatementIncome, schema.StatementBalance, schema.StatementCashFlow} {
		if err := addStatementSheet(f, sess, statement); err != nil {
			return nil, err
		}
	}

	steps := indexSteps(results.Steps)
	if err := addDerivedSheet(f, sheetMetrics, calc.MetricKeys(), steps, refs); err != nil {
		return nil, err
	}
	if err := addDerivedSheet(f, sheetRatios, calc.RatioKeys(), steps, refs); err != nil {
		return nil, err
	}
	if err := addVerificationSheet(f, results.Verification); err != nil {
		return nil, err
	}
	if err := addAuditSheet(f, results.Steps); err != nil {
		return nil, err
	}
	return f, nil
}

func addRawValuesSheet(f *xlsx.File, sess *session.Session, refs map[string]cellRef) error {
	sheet, err := f.AddSheet(sheetRawValues)
	if err != nil {
		return eris.Wrap(err, "export: add raw values sheet")
	}

	addHeaderRow(sheet, "Metric", "Current Value", "Prior Value", "Edited", "Source Concept", "Filing Date", "Filing URL")
	row := 1

	reg := schema.Default()
	for _, statement := range []string{schema.StatementIncome, schema.StatementBalance, schema.StatementCashFlow} {
		for _, key := range reg.StatementKeys(statement) {
			ev, ok := sess.Raw[key]
			if !ok {
				continue
			}
			row++
			refs[key] = cellRef{sheet: sheetRawValues, row: row}

			r := sheet.AddRow()
			r.AddCell().SetString(ev.DisplayName)
			cur, _ := sess.Resolve(key, schema.PeriodCurrent)
			pri, _ := sess.Resolve(key, schema.PeriodPrior)
			r.AddCell().SetFloatWithFormat(cur, "#,##0")
			r.AddCell().SetFloatWithFormat(pri, "#,##0")
			r.AddCell().SetString(editedMark(sess, key))
			if ev.Citation != nil {
				r.AddCell().SetString(ev.Citation.Concept)
				r.AddCell().SetString(ev.Citation.FilingDate)
				r.AddCell().SetString(ev.Citation.FilingURL)
			}
		}
	}

	// Company block below the values, as analysts expect from the manual
	// spread template.
	sheet.AddRow()
	addLabelRow(sheet, "Company Information", "")
	addLabelRow(sheet, "Ticker", sess.Ticker)
	addLabelRow(sheet, "Company Name", sess.CompanyName)
	addLabelRow(sheet, "CIK", sess.CIK)
	addLabelRow(sheet, "Fiscal Year End", sess.FiscalYearEnd)
	addLabelRow(sheet, "Prior Fiscal Year End", sess.FiscalYearEndPrior)

	setWidths(sheet, 24, 16, 16, 8, 32, 14, 40)
	return nil
}

func addStatementSheet(f *xlsx.File, sess *session.Session, statement string) error {
	sheet, err := f.AddSheet(statement)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", statement)
	}

	addHeaderRow(sheet, "Item", "Current Year", "Prior Year", "YoY Delta")
	row := 1

	for _, key := range schema.Default().StatementKeys(statement) {
		if _, ok := sess.Raw[key]; !ok {
			continue
		}
		row++
		r := sheet.AddRow()
		r.AddCell().SetString(schema.DisplayName(key))
		cur, _ := sess.Resolve(key, schema.PeriodCurrent)
		pri, _ := sess.Resolve(key, schema.PeriodPrior)
		r.AddCell().SetFloatWithFormat(cur, "#,##0")
		r.AddCell().SetFloatWithFormat(pri, "#,##0")
		delta := r.AddCell()
		delta.SetFormula(fmt.Sprintf("B%d-C%d", row, row))
		delta.NumFmt = "#,##0"
	}

	setWidths(sheet, 32, 16, 16, 16)
	return nil
}

// addDerivedSheet emits one sheet of derived values. Each key gets current,
// prior, and delta columns; when every referenced input has a cell in the
// workbook, the value is a live formula, otherwise the computed number.
func addDerivedSheet(f *xlsx.File, name string, keys []string, steps map[string]calc.CalculationStep, refs map[string]cellRef) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}

	addHeaderRow(sheet, "Metric", "Current", "Prior", "YoY Delta", "Formula")
	row := 1

	for _, key := range keys {
		cur, okCur := steps[stepKey(key, schema.PeriodCurrent)]
		pri, okPri := steps[stepKey(key, schema.PeriodPrior)]
		if !okCur || !okPri {
			continue
		}
		row++

		r := sheet.AddRow()
		r.AddCell().SetString(schema.DisplayName(key))
		format := numberFormat(key)

		writeDerivedCell(r.AddCell(), name, "B", cur, refs, format)
		writeDerivedCell(r.AddCell(), name, "C", pri, refs, format)

		// Register the derived cell only after this row's own formulas are
		// expanded, so a pass-through like =B_gross_profit keeps pointing at
		// the raw value instead of referencing itself.
		refs[key] = cellRef{sheet: name, row: row}

		delta := r.AddCell()
		delta.SetFormula(fmt.Sprintf("B%d-C%d", row, row))
		delta.NumFmt = format
		r.AddCell().SetString(cur.Formula)
	}

	setWidths(sheet, 26, 16, 16, 16, 56)
	return nil
}

func writeDerivedCell(cell *xlsx.Cell, onSheet, col string, step calc.CalculationStep, refs map[string]cellRef, format string) {
	if formula, ok := expandFormula(step.FormulaExcel, onSheet, col, refs); ok {
		cell.SetFormula(formula)
		cell.NumFmt = format
		return
	}
	cell.SetFloatWithFormat(step.Result, format)
}

func addVerificationSheet(f *xlsx.File, v *calc.VerificationResult) error {
	sheet, err := f.AddSheet(sheetVerification)
	if err != nil {
		return eris.Wrap(err, "export: add verification sheet")
	}

	summary := sheet.AddRow()
	summary.AddCell().SetString(fmt.Sprintf("Passed: %d", v.PassCount()))
	summary.AddCell().SetString(fmt.Sprintf("Failed: %d", v.FailCount()))
	summary.AddCell().SetString(fmt.Sprintf("Skipped: %d", v.SkipCount()))
	sheet.AddRow()

	addHeaderRow(sheet, "Check", "Period", "Formula", "LHS Value", "RHS Value", "Difference", "Tolerance", "Result", "Severity")
	for _, check := range v.Checks {
		r := sheet.AddRow()
		r.AddCell().SetString(check.Description)
		r.AddCell().SetString(string(check.Period))
		r.AddCell().SetString(check.Formula)
		r.AddCell().SetFloatWithFormat(check.LHSValue, "#,##0")
		r.AddCell().SetFloatWithFormat(check.RHSValue, "#,##0")
		r.AddCell().SetFloatWithFormat(check.Difference, "#,##0")
		r.AddCell().SetFloatWithFormat(check.Tolerance, "#,##0.00")
		r.AddCell().SetString(checkResult(check))
		r.AddCell().SetString(strings.ToUpper(string(check.Severity)))
	}

	setWidths(sheet, 28, 10, 56, 16, 16, 16, 12, 8, 10)
	return nil
}

func checkResult(check calc.VerificationCheck) string {
	switch {
	case check.Skipped:
		return "SKIP"
	case check.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}

func addAuditSheet(f *xlsx.File, steps []calc.CalculationStep) error {
	sheet, err := f.AddSheet(sheetAuditLog)
	if err != nil {
		return eris.Wrap(err, "export: add audit sheet")
	}

	note := sheet.AddRow()
	note.AddCell().SetString("Calculation ledger. Working formulas live on the Calculated Metrics and Ratios sheets.")
	sheet.AddRow()

	addHeaderRow(sheet, "Metric", "Period", "Formula", "Inputs", "Result")
	for _, step := range steps {
		r := sheet.AddRow()
		r.AddCell().SetString(step.Metric)
		r.AddCell().SetString(string(step.Period))
		r.AddCell().SetString(step.Formula)
		r.AddCell().SetString(formatInputs(step.Inputs))
		r.AddCell().SetFloatWithFormat(step.Result, "#,##0.00")
	}

	setWidths(sheet, 24, 10, 56, 64, 18)
	return nil
}

// placeholderRe matches the metric-key placeholders carried in spreadsheet
// formula templates, e.g. B_operating_income.
var placeholderRe = regexp.MustCompile(`B_([a-z_]+)`)

// expandFormula rewrites a placeholder formula into concrete cell references
// for the given column. It reports false if any referenced key has no cell,
// in which case the caller falls back to the computed value.
func expandFormula(template, onSheet, col string, refs map[string]cellRef) (string, bool) {
	complete := true
	expanded := placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		key := strings.TrimPrefix(m, "B_")
		ref, ok := refs[key]
		if !ok {
			complete = false
			return m
		}
		if ref.sheet == onSheet {
			return fmt.Sprintf("%s%d", col, ref.row)
		}
		return fmt.Sprintf("'%s'!%s%d", ref.sheet, col, ref.row)
	})
	if !complete {
		return "", false
	}
	return strings.TrimPrefix(expanded, "="), true
}

// helpers

func addHeaderRow(sheet *xlsx.Sheet, titles ...string) {
	style := xlsx.NewStyle()
	style.Font.Bold = true
	style.ApplyFont = true

	r := sheet.AddRow()
	for _, title := range titles {
		cell := r.AddCell()
		cell.SetString(title)
		cell.SetStyle(style)
	}
}

func addLabelRow(sheet *xlsx.Sheet, label, value string) {
	r := sheet.AddRow()
	r.AddCell().SetString(label)
	r.AddCell().SetString(value)
}

func setWidths(sheet *xlsx.Sheet, widths ...float64) {
	for i, w := range widths {
		sheet.SetColWidth(i, i, w)
	}
}

func editedMark(sess *session.Session, key string) string {
	if sess.IsEdited(key, schema.PeriodCurrent) || sess.IsEdited(key, schema.PeriodPrior) {
		return "yes"
	}
	return ""
}

func stepKey(metric string, period schema.Period) string {
	return metric + "|" + string(period)
}

func indexSteps(steps []calc.CalculationStep) map[string]calc.CalculationStep {
	out := make(map[string]calc.CalculationStep, len(steps))
	for _, s := range steps {
		out[stepKey(s.Metric, s.Period)] = s
	}
	return out
}

func formatInputs(inputs map[string]float64) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.0f", k, inputs[k])
	}
	return strings.Join(parts, ", ")
}

// numberFormat picks the spreadsheet number format for a derived key:
// margins and returns render as percentages, currency values as whole
// units, multiples with two decimals.
func numberFormat(key string) string {
	switch {
	case strings.HasSuffix(key, "_margin"), strings.HasPrefix(key, "return_on_"):
		return "0.00%"
	case key == "days_sales_outstanding":
		return "0.0"
	}
	switch key {
	case "top_line_revenue", "gross_profit", "operating_income", "ebitda",
		"adjusted_ebitda", "net_income", "cash_balance", "tangible_net_worth",
		"net_debt", "working_capital":
		return "#,##0"
	}
	return "0.00"
}
