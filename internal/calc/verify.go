package calc

import (
	"encoding/json"

	"github.com/sells-group/spread-cli/internal/schema"
)

// Severity classifies a failed check.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// DefaultAbsFloor is the absolute tolerance floor in currency units. It keeps
// checks over all-zero statements from failing on noise while staying below
// any meaningful discrepancy.
const DefaultAbsFloor = 0.01

// Term is one side component of a check: a line-item key and its sign.
type Term struct {
	Key  string
	Mult float64
}

// CheckDef is one entry in the declarative verification table. Both sides
// are sums of resolved line items; if any required key fails to resolve the
// check is skipped, never failed.
type CheckDef struct {
	ID          string
	Description string
	Formula     string
	LHS         []Term
	RHS         []Term
	RelTol      float64
	AbsFloor    float64 // 0 means the engine default
	Severity    Severity
}

// checkDefs is the fixed consistency-check table, run for both periods.
var checkDefs = []CheckDef{
	{
		ID:          "gross_profit",
		Description: "Gross Profit Tie",
		Formula:     "Revenue - Cost of Revenue = Gross Profit",
		LHS:         []Term{{"revenue", 1}, {"cost_of_revenue", -1}},
		RHS:         []Term{{"gross_profit", 1}},
		RelTol:      0.01,
		Severity:    SeverityError,
	},
	{
		ID:          "operating_income",
		Description: "Operating Income Tie",
		Formula:     "Gross Profit - SG&A - R&D - D&A - Other OpEx = Operating Income",
		LHS: []Term{
			{"gross_profit", 1}, {"sga_expense", -1}, {"rd_expense", -1},
			{"depreciation_amortization", -1}, {"other_operating_expense", -1},
		},
		RHS:      []Term{{"operating_income", 1}},
		RelTol:   0.05,
		Severity: SeverityWarning,
	},
	{
		ID:          "net_income",
		Description: "Net Income Tie",
		Formula:     "Income Before Tax - Income Tax = Net Income",
		LHS:         []Term{{"income_before_tax", 1}, {"income_tax_expense", -1}},
		RHS:         []Term{{"net_income", 1}},
		RelTol:      0.05,
		Severity:    SeverityWarning,
	},
	{
		ID:          "current_assets",
		Description: "Current Assets Subtotal Tie",
		Formula:     "Cash + ST Investments + A/R + Inventories + Other CA = Current Assets",
		LHS: []Term{
			{"cash", 1}, {"short_term_investments", 1}, {"accounts_receivable", 1},
			{"inventories", 1}, {"other_current_assets", 1},
		},
		RHS:      []Term{{"current_assets", 1}},
		RelTol:   0.02,
		Severity: SeverityWarning,
	},
	{
		ID:          "accounting_equation",
		Description: "Accounting Equation",
		Formula:     "Total Assets = Total Liabilities + Stockholders' Equity",
		LHS:         []Term{{"total_assets", 1}},
		RHS:         []Term{{"total_liabilities", 1}, {"stockholders_equity", 1}},
		RelTol:      0.005,
		Severity:    SeverityError,
	},
	{
		ID:          "current_liabilities",
		Description: "Current Liabilities Subtotal Tie",
		Formula:     "A/P + ST Debt + Accrued + Other CL = Current Liabilities",
		LHS: []Term{
			{"accounts_payable", 1}, {"short_term_debt", 1},
			{"accrued_liabilities", 1}, {"other_current_liabilities", 1},
		},
		RHS:      []Term{{"current_liabilities", 1}},
		RelTol:   0.02,
		Severity: SeverityWarning,
	},
	{
		ID:          "cash_flow",
		Description: "Cash Flow Tie",
		Formula:     "Cash from Ops + Investing + Financing = Net Change in Cash",
		LHS: []Term{
			{"cash_from_operations", 1}, {"cash_from_investing", 1},
			{"cash_from_financing", 1},
		},
		RHS:      []Term{{"net_change_in_cash", 1}},
		RelTol:   0.01,
		Severity: SeverityError,
	},
}

// VerificationCheck is one evaluated (or skipped) check for one period.
// Difference is signed: lhs - rhs.
type VerificationCheck struct {
	CheckID     string        `json:"check_id"`
	Description string        `json:"description"`
	Formula     string        `json:"formula"`
	LHSValue    float64       `json:"lhs_value"`
	RHSValue    float64       `json:"rhs_value"`
	Difference  float64       `json:"difference"`
	Tolerance   float64       `json:"tolerance"`
	Passed      bool          `json:"passed"`
	Severity    Severity      `json:"severity"`
	Period      schema.Period `json:"period"`
	Skipped     bool          `json:"skipped"`
}

// VerificationResult aggregates all checks from one recomputation.
type VerificationResult struct {
	Checks []VerificationCheck `json:"checks"`
}

// PassCount counts evaluated checks that passed.
func (v *VerificationResult) PassCount() int {
	n := 0
	for _, c := range v.Checks {
		if !c.Skipped && c.Passed {
			n++
		}
	}
	return n
}

// FailCount counts evaluated checks that failed, regardless of severity.
func (v *VerificationResult) FailCount() int {
	n := 0
	for _, c := range v.Checks {
		if !c.Skipped && !c.Passed {
			n++
		}
	}
	return n
}

// ErrorCount counts failed checks with error severity.
func (v *VerificationResult) ErrorCount() int {
	n := 0
	for _, c := range v.Checks {
		if !c.Skipped && !c.Passed && c.Severity == SeverityError {
			n++
		}
	}
	return n
}

// WarningCount counts failed checks with warning severity.
func (v *VerificationResult) WarningCount() int {
	n := 0
	for _, c := range v.Checks {
		if !c.Skipped && !c.Passed && c.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// SkipCount counts checks that could not run for lack of inputs.
func (v *VerificationResult) SkipCount() int {
	n := 0
	for _, c := range v.Checks {
		if c.Skipped {
			n++
		}
	}
	return n
}

// MarshalJSON emits the checks together with the aggregate counters so
// consumers never re-derive them.
func (v *VerificationResult) MarshalJSON() ([]byte, error) {
	type alias VerificationResult
	return json.Marshal(struct {
		*alias
		PassCount    int `json:"pass_count"`
		FailCount    int `json:"fail_count"`
		WarningCount int `json:"warning_count"`
		ErrorCount   int `json:"error_count"`
		SkipCount    int `json:"skip_count"`
	}{
		alias:        (*alias)(v),
		PassCount:    v.PassCount(),
		FailCount:    v.FailCount(),
		WarningCount: v.WarningCount(),
		ErrorCount:   v.ErrorCount(),
		SkipCount:    v.SkipCount(),
	})
}

// Verify evaluates the full check table against r for both periods. Each
// invocation recomputes every check from the current resolved values.
func (e Engine) Verify(r Resolver) *VerificationResult {
	floor := e.AbsFloor
	if floor == 0 {
		floor = DefaultAbsFloor
	}

	result := &VerificationResult{Checks: make([]VerificationCheck, 0, len(checkDefs)*len(schema.Periods))}
	for _, period := range schema.Periods {
		for _, def := range checkDefs {
			result.Checks = append(result.Checks, evalCheck(r, def, period, floor))
		}
	}
	return result
}

func evalCheck(r Resolver, def CheckDef, period schema.Period, defaultFloor float64) VerificationCheck {
	check := VerificationCheck{
		CheckID:     def.ID,
		Description: def.Description,
		Formula:     def.Formula,
		Severity:    def.Severity,
		Period:      period,
	}

	lhs, ok := sumTerms(r, def.LHS, period)
	if !ok {
		check.Skipped = true
		return check
	}
	rhs, ok := sumTerms(r, def.RHS, period)
	if !ok {
		check.Skipped = true
		return check
	}

	floor := def.AbsFloor
	if floor == 0 {
		floor = defaultFloor
	}

	check.LHSValue = lhs
	check.RHSValue = rhs
	check.Difference = lhs - rhs
	check.Tolerance = max(floor, def.RelTol*max(abs(lhs), abs(rhs)))
	check.Passed = abs(check.Difference) <= check.Tolerance
	return check
}

// sumTerms sums resolved values weighted by sign. Any unresolvable key makes
// the whole side unavailable.
func sumTerms(r Resolver, terms []Term, period schema.Period) (float64, bool) {
	var sum float64
	for _, t := range terms {
		v, ok := r.Resolve(t.Key, period)
		if !ok {
			return 0, false
		}
		sum += v * t.Mult
	}
	return sum, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
