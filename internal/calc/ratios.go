package calc

import "github.com/sells-group/spread-cli/internal/schema"

// Ratios holds the derived financial ratios for both periods. Ratios are
// multiples, returns are fractions, DSO is days, working capital and net
// debt are absolute currency units.
type Ratios struct {
	CurrentRatio                float64 `json:"current_ratio"`
	CurrentRatioPrior           float64 `json:"current_ratio_prior"`
	CashRatio                   float64 `json:"cash_ratio"`
	CashRatioPrior              float64 `json:"cash_ratio_prior"`
	DebtToEquity                float64 `json:"debt_to_equity"`
	DebtToEquityPrior           float64 `json:"debt_to_equity_prior"`
	EBITDAInterestCoverage      float64 `json:"ebitda_interest_coverage"`
	EBITDAInterestCoveragePrior float64 `json:"ebitda_interest_coverage_prior"`
	NetDebt                     float64 `json:"net_debt"`
	NetDebtPrior                float64 `json:"net_debt_prior"`
	NetDebtToEBITDA             float64 `json:"net_debt_to_ebitda"`
	NetDebtToEBITDAPrior        float64 `json:"net_debt_to_ebitda_prior"`
	NetDebtToAdjEBITDA          float64 `json:"net_debt_to_adj_ebitda"`
	NetDebtToAdjEBITDAPrior     float64 `json:"net_debt_to_adj_ebitda_prior"`
	DaysSalesOutstanding        float64 `json:"days_sales_outstanding"`
	DaysSalesOutstandingPrior   float64 `json:"days_sales_outstanding_prior"`
	WorkingCapital              float64 `json:"working_capital"`
	WorkingCapitalPrior         float64 `json:"working_capital_prior"`
	ReturnOnAssets              float64 `json:"return_on_assets"`
	ReturnOnAssetsPrior         float64 `json:"return_on_assets_prior"`
	ReturnOnEquity              float64 `json:"return_on_equity"`
	ReturnOnEquityPrior         float64 `json:"return_on_equity_prior"`
}

// Deltas returns year-over-year deltas for every ratio.
func (r *Ratios) Deltas() map[string]float64 {
	return map[string]float64{
		"current_ratio_delta":            r.CurrentRatio - r.CurrentRatioPrior,
		"cash_ratio_delta":               r.CashRatio - r.CashRatioPrior,
		"debt_to_equity_delta":           r.DebtToEquity - r.DebtToEquityPrior,
		"ebitda_interest_coverage_delta": r.EBITDAInterestCoverage - r.EBITDAInterestCoveragePrior,
		"net_debt_delta":                 r.NetDebt - r.NetDebtPrior,
		"net_debt_to_ebitda_delta":       r.NetDebtToEBITDA - r.NetDebtToEBITDAPrior,
		"net_debt_to_adj_ebitda_delta":   r.NetDebtToAdjEBITDA - r.NetDebtToAdjEBITDAPrior,
		"days_sales_outstanding_delta":   r.DaysSalesOutstanding - r.DaysSalesOutstandingPrior,
		"working_capital_delta":          r.WorkingCapital - r.WorkingCapitalPrior,
		"return_on_assets_delta":         r.ReturnOnAssets - r.ReturnOnAssetsPrior,
		"return_on_equity_delta":         r.ReturnOnEquity - r.ReturnOnEquityPrior,
	}
}

// RatioDef is one entry in the declarative ratio table. LowerIsBetter is a
// presentation hint stored with the definition; the calculator never uses it
// arithmetically.
type RatioDef struct {
	Key           string
	Formula       string
	FormulaExcel  string
	Inputs        []string
	LowerIsBetter bool
	Compute       func(get func(string) float64) float64
}

// ratioDefs is evaluated top to bottom once per period, seeded with the
// derived metrics so coverage ratios see computed EBITDA.
var ratioDefs = []RatioDef{
	{
		Key:          "current_ratio",
		Formula:      "Current Ratio = Current Assets / Current Liabilities",
		FormulaExcel: "=B_current_assets/B_current_liabilities",
		Inputs:       []string{"current_assets", "current_liabilities"},
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("current_assets"), get("current_liabilities"))
		},
	},
	{
		Key:          "cash_ratio",
		Formula:      "Cash Ratio = (Cash + Short-Term Investments) / Current Liabilities",
		FormulaExcel: "=(B_cash+B_short_term_investments)/B_current_liabilities",
		Inputs:       []string{"cash", "short_term_investments", "current_liabilities"},
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("cash")+get("short_term_investments"), get("current_liabilities"))
		},
	},
	{
		Key:           "debt_to_equity",
		Formula:       "Debt-to-Equity = Total Debt / Stockholders' Equity",
		FormulaExcel:  "=B_total_debt/B_stockholders_equity",
		Inputs:        []string{"total_debt", "stockholders_equity"},
		LowerIsBetter: true,
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("total_debt"), get("stockholders_equity"))
		},
	},
	{
		Key:          "ebitda_interest_coverage",
		Formula:      "EBITDA Interest Coverage = EBITDA / Interest Expense",
		FormulaExcel: "=B_ebitda/B_interest_expense",
		Inputs:       []string{"ebitda", "interest_expense"},
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("ebitda"), get("interest_expense"))
		},
	},
	{
		Key:          "net_debt",
		Formula:      "Net Debt = Total Debt - Cash",
		FormulaExcel: "=B_total_debt-B_cash",
		Inputs:       []string{"total_debt", "cash"},
		Compute: func(get func(string) float64) float64 {
			return get("total_debt") - get("cash")
		},
	},
	{
		Key:           "net_debt_to_ebitda",
		Formula:       "Net Debt / EBITDA",
		FormulaExcel:  "=B_net_debt/B_ebitda",
		Inputs:        []string{"net_debt", "ebitda"},
		LowerIsBetter: true,
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("net_debt"), get("ebitda"))
		},
	},
	{
		Key:           "net_debt_to_adj_ebitda",
		Formula:       "Net Debt / Adjusted EBITDA",
		FormulaExcel:  "=B_net_debt/B_adjusted_ebitda",
		Inputs:        []string{"net_debt", "adjusted_ebitda"},
		LowerIsBetter: true,
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("net_debt"), get("adjusted_ebitda"))
		},
	},
	{
		Key:           "days_sales_outstanding",
		Formula:       "Days Sales Outstanding = (Accounts Receivable / Revenue) x 365",
		FormulaExcel:  "=(B_accounts_receivable/B_revenue)*365",
		Inputs:        []string{"accounts_receivable", "revenue"},
		LowerIsBetter: true,
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("accounts_receivable"), get("revenue")) * 365
		},
	},
	{
		Key:          "working_capital",
		Formula:      "Working Capital = Current Assets - Current Liabilities",
		FormulaExcel: "=B_current_assets-B_current_liabilities",
		Inputs:       []string{"current_assets", "current_liabilities"},
		Compute: func(get func(string) float64) float64 {
			return get("current_assets") - get("current_liabilities")
		},
	},
	{
		Key:          "return_on_assets",
		Formula:      "Return on Assets = Net Income / Total Assets",
		FormulaExcel: "=B_net_income/B_total_assets",
		Inputs:       []string{"net_income", "total_assets"},
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("net_income"), get("total_assets"))
		},
	},
	{
		Key:          "return_on_equity",
		Formula:      "Return on Equity = Net Income / Stockholders' Equity",
		FormulaExcel: "=B_net_income/B_stockholders_equity",
		Inputs:       []string{"net_income", "stockholders_equity"},
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("net_income"), get("stockholders_equity"))
		},
	},
}

// RatioKeys returns the ratio table's keys in evaluation order.
func RatioKeys() []string {
	keys := make([]string, len(ratioDefs))
	for i, def := range ratioDefs {
		keys[i] = def.Key
	}
	return keys
}

// LowerIsBetter returns the polarity hint for a ratio key.
func LowerIsBetter(key string) bool {
	for _, def := range ratioDefs {
		if def.Key == key {
			return def.LowerIsBetter
		}
	}
	return false
}

// ComputeRatios applies the ratio table independently to each period, seeded
// with the already-derived metrics. One CalculationStep per ratio per period.
func ComputeRatios(r Resolver, m *Metrics) (*Ratios, []CalculationStep) {
	cur, stepsCur := evalRatioDefs(r, schema.PeriodCurrent, map[string]float64{
		"ebitda":          m.EBITDA,
		"adjusted_ebitda": m.AdjustedEBITDA,
		"net_income":      m.NetIncome,
	})
	pri, stepsPri := evalRatioDefs(r, schema.PeriodPrior, map[string]float64{
		"ebitda":          m.EBITDAPrior,
		"adjusted_ebitda": m.AdjustedEBITDAPrior,
		"net_income":      m.NetIncomePrior,
	})

	out := &Ratios{
		CurrentRatio:                cur["current_ratio"],
		CurrentRatioPrior:           pri["current_ratio"],
		CashRatio:                   cur["cash_ratio"],
		CashRatioPrior:              pri["cash_ratio"],
		DebtToEquity:                cur["debt_to_equity"],
		DebtToEquityPrior:           pri["debt_to_equity"],
		EBITDAInterestCoverage:      cur["ebitda_interest_coverage"],
		EBITDAInterestCoveragePrior: pri["ebitda_interest_coverage"],
		NetDebt:                     cur["net_debt"],
		NetDebtPrior:                pri["net_debt"],
		NetDebtToEBITDA:             cur["net_debt_to_ebitda"],
		NetDebtToEBITDAPrior:        pri["net_debt_to_ebitda"],
		NetDebtToAdjEBITDA:          cur["net_debt_to_adj_ebitda"],
		NetDebtToAdjEBITDAPrior:     pri["net_debt_to_adj_ebitda"],
		DaysSalesOutstanding:        cur["days_sales_outstanding"],
		DaysSalesOutstandingPrior:   pri["days_sales_outstanding"],
		WorkingCapital:              cur["working_capital"],
		WorkingCapitalPrior:         pri["working_capital"],
		ReturnOnAssets:              cur["return_on_assets"],
		ReturnOnAssetsPrior:         pri["return_on_assets"],
		ReturnOnEquity:              cur["return_on_equity"],
		ReturnOnEquityPrior:         pri["return_on_equity"],
	}
	return out, append(stepsCur, stepsPri...)
}

func evalRatioDefs(r Resolver, period schema.Period, seed map[string]float64) (map[string]float64, []CalculationStep) {
	e := newEnv(r, period)
	for k, v := range seed {
		e.derived[k] = v
	}

	steps := make([]CalculationStep, 0, len(ratioDefs))
	for _, def := range ratioDefs {
		inputs := e.inputs(def.Inputs)
		result := def.Compute(e.get)
		e.derived[def.Key] = result
		steps = append(steps, CalculationStep{
			Metric:       def.Key,
			Period:       period,
			Formula:      def.Formula,
			FormulaExcel: def.FormulaExcel,
			Inputs:       inputs,
			Result:       result,
		})
	}
	return e.derived, steps
}
