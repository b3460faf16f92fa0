package calc

import "github.com/sells-group/spread-cli/internal/schema"

// Metrics holds the derived financial metrics for both periods. Currency
// values are absolute units; margins are fractions.
type Metrics struct {
	TopLineRevenue             float64 `json:"top_line_revenue"`
	TopLineRevenuePrior        float64 `json:"top_line_revenue_prior"`
	GrossProfit                float64 `json:"gross_profit"`
	GrossProfitPrior           float64 `json:"gross_profit_prior"`
	GrossProfitMargin          float64 `json:"gross_profit_margin"`
	GrossProfitMarginPrior     float64 `json:"gross_profit_margin_prior"`
	OperatingIncome            float64 `json:"operating_income"`
	OperatingIncomePrior       float64 `json:"operating_income_prior"`
	OperatingIncomeMargin      float64 `json:"operating_income_margin"`
	OperatingIncomeMarginPrior float64 `json:"operating_income_margin_prior"`
	EBITDA                     float64 `json:"ebitda"`
	EBITDAPrior                float64 `json:"ebitda_prior"`
	EBITDAMargin               float64 `json:"ebitda_margin"`
	EBITDAMarginPrior          float64 `json:"ebitda_margin_prior"`
	AdjustedEBITDA             float64 `json:"adjusted_ebitda"`
	AdjustedEBITDAPrior        float64 `json:"adjusted_ebitda_prior"`
	AdjustedEBITDAMargin       float64 `json:"adjusted_ebitda_margin"`
	AdjustedEBITDAMarginPrior  float64 `json:"adjusted_ebitda_margin_prior"`
	NetIncome                  float64 `json:"net_income"`
	NetIncomePrior             float64 `json:"net_income_prior"`
	NetIncomeMargin            float64 `json:"net_income_margin"`
	NetIncomeMarginPrior       float64 `json:"net_income_margin_prior"`
	CashBalance                float64 `json:"cash_balance"`
	CashBalancePrior           float64 `json:"cash_balance_prior"`
	TangibleNetWorth           float64 `json:"tangible_net_worth"`
	TangibleNetWorthPrior      float64 `json:"tangible_net_worth_prior"`
}

// Deltas returns year-over-year deltas for every metric.
func (m *Metrics) Deltas() map[string]float64 {
	return map[string]float64{
		"top_line_revenue_delta":        m.TopLineRevenue - m.TopLineRevenuePrior,
		"gross_profit_delta":            m.GrossProfit - m.GrossProfitPrior,
		"gross_profit_margin_delta":     m.GrossProfitMargin - m.GrossProfitMarginPrior,
		"operating_income_delta":        m.OperatingIncome - m.OperatingIncomePrior,
		"operating_income_margin_delta": m.OperatingIncomeMargin - m.OperatingIncomeMarginPrior,
		"ebitda_delta":                  m.EBITDA - m.EBITDAPrior,
		"ebitda_margin_delta":           m.EBITDAMargin - m.EBITDAMarginPrior,
		"adjusted_ebitda_delta":         m.AdjustedEBITDA - m.AdjustedEBITDAPrior,
		"adjusted_ebitda_margin_delta":  m.AdjustedEBITDAMargin - m.AdjustedEBITDAMarginPrior,
		"net_income_delta":              m.NetIncome - m.NetIncomePrior,
		"net_income_margin_delta":       m.NetIncomeMargin - m.NetIncomeMarginPrior,
		"cash_balance_delta":            m.CashBalance - m.CashBalancePrior,
		"tangible_net_worth_delta":      m.TangibleNetWorth - m.TangibleNetWorthPrior,
	}
}

// MetricDef is one entry in the declarative metric table. When Direct names
// a line item that resolves to a non-zero value, the reported figure passes
// through untouched and Compute is not consulted; otherwise the metric is
// reconstructed from its components. Absent optional components contribute 0.
type MetricDef struct {
	Key                string
	Direct             string // reported line item to prefer, if any
	DirectFormula      string
	DirectFormulaExcel string
	Formula            string
	FormulaExcel       string
	Inputs             []string
	Compute            func(get func(string) float64) float64
}

// metricDefs is evaluated top to bottom once per period. Later definitions
// may reference earlier results by key.
var metricDefs = []MetricDef{
	{
		Key:          "top_line_revenue",
		Formula:      "Top Line Revenue = Revenue (reported)",
		FormulaExcel: "=B_revenue",
		Inputs:       []string{"revenue"},
		Compute:      func(get func(string) float64) float64 { return get("revenue") },
	},
	{
		Key:                "gross_profit",
		Direct:             "gross_profit",
		DirectFormula:      "Gross Profit (reported directly)",
		DirectFormulaExcel: "=B_gross_profit",
		Formula:            "Gross Profit = Revenue - Cost of Revenue",
		FormulaExcel:       "=B_revenue-B_cost_of_revenue",
		Inputs:             []string{"revenue", "cost_of_revenue"},
		Compute: func(get func(string) float64) float64 {
			return get("revenue") - get("cost_of_revenue")
		},
	},
	{
		Key:          "gross_profit_margin",
		Formula:      "Gross Margin = Gross Profit / Revenue",
		FormulaExcel: "=B_gross_profit/B_revenue",
		Inputs:       []string{"gross_profit", "revenue"},
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("gross_profit"), get("revenue"))
		},
	},
	{
		Key:                "operating_income",
		Direct:             "operating_income",
		DirectFormula:      "Operating Income (reported directly)",
		DirectFormulaExcel: "=B_operating_income",
		Formula:            "Operating Income = Gross Profit - SG&A - R&D - D&A - Other OpEx",
		FormulaExcel:       "=B_gross_profit-B_sga_expense-B_rd_expense-B_depreciation_amortization-B_other_operating_expense",
		Inputs: []string{
			"gross_profit", "sga_expense", "rd_expense",
			"depreciation_amortization", "other_operating_expense",
		},
		Compute: func(get func(string) float64) float64 {
			return get("gross_profit") - get("sga_expense") - get("rd_expense") -
				get("depreciation_amortization") - get("other_operating_expense")
		},
	},
	{
		Key:          "operating_income_margin",
		Formula:      "Operating Margin = Operating Income / Revenue",
		FormulaExcel: "=B_operating_income/B_revenue",
		Inputs:       []string{"operating_income", "revenue"},
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("operating_income"), get("revenue"))
		},
	},
	{
		Key:          "ebitda",
		Formula:      "EBITDA = Operating Income + Depreciation & Amortization",
		FormulaExcel: "=B_operating_income+B_depreciation_amortization",
		Inputs:       []string{"operating_income", "depreciation_amortization"},
		Compute: func(get func(string) float64) float64 {
			return get("operating_income") + get("depreciation_amortization")
		},
	},
	{
		Key:          "ebitda_margin",
		Formula:      "EBITDA Margin = EBITDA / Revenue",
		FormulaExcel: "=B_ebitda/B_revenue",
		Inputs:       []string{"ebitda", "revenue"},
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("ebitda"), get("revenue"))
		},
	},
	{
		Key:          "adjusted_ebitda",
		Formula:      "Adjusted EBITDA = EBITDA + Stock-Based Compensation + Other Addbacks",
		FormulaExcel: "=B_ebitda+B_stock_compensation+B_other_addbacks",
		Inputs:       []string{"ebitda", "stock_compensation", "other_addbacks"},
		Compute: func(get func(string) float64) float64 {
			return get("ebitda") + get("stock_compensation") + get("other_addbacks")
		},
	},
	{
		Key:          "adjusted_ebitda_margin",
		Formula:      "Adjusted EBITDA Margin = Adjusted EBITDA / Revenue",
		FormulaExcel: "=B_adjusted_ebitda/B_revenue",
		Inputs:       []string{"adjusted_ebitda", "revenue"},
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("adjusted_ebitda"), get("revenue"))
		},
	},
	{
		Key:          "net_income",
		Formula:      "Net Income (reported directly)",
		FormulaExcel: "=B_net_income",
		Inputs:       []string{"net_income"},
		Compute:      func(get func(string) float64) float64 { return get("net_income") },
	},
	{
		Key:          "net_income_margin",
		Formula:      "Net Margin = Net Income / Revenue",
		FormulaExcel: "=B_net_income/B_revenue",
		Inputs:       []string{"net_income", "revenue"},
		Compute: func(get func(string) float64) float64 {
			return safeDiv(get("net_income"), get("revenue"))
		},
	},
	{
		Key:          "cash_balance",
		Formula:      "Cash Balance = Cash + Short-Term Investments",
		FormulaExcel: "=B_cash+B_short_term_investments",
		Inputs:       []string{"cash", "short_term_investments"},
		Compute: func(get func(string) float64) float64 {
			return get("cash") + get("short_term_investments")
		},
	},
	{
		Key:          "tangible_net_worth",
		Formula:      "Tangible Net Worth = Stockholders' Equity - Intangible Assets - Goodwill",
		FormulaExcel: "=B_stockholders_equity-B_intangible_assets-B_goodwill",
		Inputs:       []string{"stockholders_equity", "intangible_assets", "goodwill"},
		Compute: func(get func(string) float64) float64 {
			return get("stockholders_equity") - get("intangible_assets") - get("goodwill")
		},
	},
}

// MetricKeys returns the metric table's keys in evaluation order.
func MetricKeys() []string {
	keys := make([]string, len(metricDefs))
	for i, def := range metricDefs {
		keys[i] = def.Key
	}
	return keys
}

// ComputeMetrics applies the metric table independently to each period. One
// CalculationStep is emitted per metric per period, in table order. Pure and
// side-effect free; it never errors, whatever the input coverage.
func ComputeMetrics(r Resolver) (*Metrics, []CalculationStep) {
	cur, stepsCur := evalMetricDefs(r, schema.PeriodCurrent)
	pri, stepsPri := evalMetricDefs(r, schema.PeriodPrior)

	m := &Metrics{
		TopLineRevenue:             cur["top_line_revenue"],
		TopLineRevenuePrior:        pri["top_line_revenue"],
		GrossProfit:                cur["gross_profit"],
		GrossProfitPrior:           pri["gross_profit"],
		GrossProfitMargin:          cur["gross_profit_margin"],
		GrossProfitMarginPrior:     pri["gross_profit_margin"],
		OperatingIncome:            cur["operating_income"],
		OperatingIncomePrior:       pri["operating_income"],
		OperatingIncomeMargin:      cur["operating_income_margin"],
		OperatingIncomeMarginPrior: pri["operating_income_margin"],
		EBITDA:                     cur["ebitda"],
		EBITDAPrior:                pri["ebitda"],
		EBITDAMargin:               cur["ebitda_margin"],
		EBITDAMarginPrior:          pri["ebitda_margin"],
		AdjustedEBITDA:             cur["adjusted_ebitda"],
		AdjustedEBITDAPrior:        pri["adjusted_ebitda"],
		AdjustedEBITDAMargin:       cur["adjusted_ebitda_margin"],
		AdjustedEBITDAMarginPrior:  pri["adjusted_ebitda_margin"],
		NetIncome:                  cur["net_income"],
		NetIncomePrior:             pri["net_income"],
		NetIncomeMargin:            cur["net_income_margin"],
		NetIncomeMarginPrior:       pri["net_income_margin"],
		CashBalance:                cur["cash_balance"],
		CashBalancePrior:           pri["cash_balance"],
		TangibleNetWorth:           cur["tangible_net_worth"],
		TangibleNetWorthPrior:      pri["tangible_net_worth"],
	}
	return m, append(stepsCur, stepsPri...)
}

func evalMetricDefs(r Resolver, period schema.Period) (map[string]float64, []CalculationStep) {
	e := newEnv(r, period)
	steps := make([]CalculationStep, 0, len(metricDefs))

	for _, def := range metricDefs {
		var step CalculationStep
		if v, ok := e.raw(def.Direct); def.Direct != "" && ok && v != 0 {
			e.derived[def.Key] = v
			step = CalculationStep{
				Metric:       def.Key,
				Period:       period,
				Formula:      def.DirectFormula,
				FormulaExcel: def.DirectFormulaExcel,
				Inputs:       map[string]float64{def.Direct: v},
				Result:       v,
			}
		} else {
			inputs := e.inputs(def.Inputs)
			result := def.Compute(e.get)
			e.derived[def.Key] = result
			step = CalculationStep{
				Metric:       def.Key,
				Period:       period,
				Formula:      def.Formula,
				FormulaExcel: def.FormulaExcel,
				Inputs:       inputs,
				Result:       result,
			}
		}
		steps = append(steps, step)
	}
	return e.derived, steps
}
