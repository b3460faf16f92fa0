// Package schema defines the canonical metric-key namespace shared by raw
// extraction, the edit overlay, the calculators, and verification. A key means
// the same thing everywhere; the namespace is flat and versioned.
package schema

// Version identifies the canonical line-item schema. Sessions record the
// version they were extracted against so stored documents stay interpretable
// when the namespace grows.
const Version = "v1"

// Period selects the fiscal period of a value.
type Period string

const (
	PeriodCurrent Period = "current"
	PeriodPrior   Period = "prior"
)

// Periods lists both fiscal periods in evaluation order.
var Periods = []Period{PeriodCurrent, PeriodPrior}

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	return p == PeriodCurrent || p == PeriodPrior
}

// Statement names used for grouping line items.
const (
	StatementIncome   = "Income Statement"
	StatementBalance  = "Balance Sheet"
	StatementCashFlow = "Cash Flow"
)

// LineItem describes one canonical extracted line item.
type LineItem struct {
	Key         string
	DisplayName string
	Statement   string
	Required    bool // extractor must attempt this key
}

// lineItems is the canonical table. Order matters: it is the display and
// export order within each statement.
var lineItems = []LineItem{
	// Income statement
	{Key: "revenue", DisplayName: "Top Line Revenue", Statement: StatementIncome, Required: true},
	{Key: "cost_of_revenue", DisplayName: "Cost of Revenue", Statement: StatementIncome, Required: true},
	{Key: "gross_profit", DisplayName: "Gross Profit", Statement: StatementIncome, Required: true},
	{Key: "sga_expense", DisplayName: "Selling, General & Administrative", Statement: StatementIncome},
	{Key: "rd_expense", DisplayName: "Research & Development", Statement: StatementIncome},
	{Key: "other_operating_expense", DisplayName: "Other Operating Expense", Statement: StatementIncome},
	{Key: "operating_income", DisplayName: "Operating Income", Statement: StatementIncome, Required: true},
	{Key: "depreciation_amortization", DisplayName: "Depreciation & Amortization", Statement: StatementIncome, Required: true},
	{Key: "interest_expense", DisplayName: "Interest Expense", Statement: StatementIncome, Required: true},
	{Key: "income_before_tax", DisplayName: "Income Before Tax", Statement: StatementIncome},
	{Key: "income_tax_expense", DisplayName: "Income Tax Expense", Statement: StatementIncome},
	{Key: "net_income", DisplayName: "Net Income", Statement: StatementIncome, Required: true},
	{Key: "stock_compensation", DisplayName: "Stock-Based Compensation", Statement: StatementIncome, Required: true},
	{Key: "other_addbacks", DisplayName: "Other EBITDA Addbacks", Statement: StatementIncome},

	// Balance sheet
	{Key: "cash", DisplayName: "Cash & Cash Equivalents", Statement: StatementBalance, Required: true},
	{Key: "short_term_investments", DisplayName: "Short-Term Investments", Statement: StatementBalance},
	{Key: "accounts_receivable", DisplayName: "Accounts Receivable", Statement: StatementBalance, Required: true},
	{Key: "inventories", DisplayName: "Inventories", Statement: StatementBalance},
	{Key: "other_current_assets", DisplayName: "Other Current Assets", Statement: StatementBalance},
	{Key: "current_assets", DisplayName: "Current Assets", Statement: StatementBalance, Required: true},
	{Key: "accounts_payable", DisplayName: "Accounts Payable", Statement: StatementBalance},
	{Key: "short_term_debt", DisplayName: "Short-Term Debt", Statement: StatementBalance},
	{Key: "accrued_liabilities", DisplayName: "Accrued Liabilities", Statement: StatementBalance},
	{Key: "other_current_liabilities", DisplayName: "Other Current Liabilities", Statement: StatementBalance},
	{Key: "current_liabilities", DisplayName: "Current Liabilities", Statement: StatementBalance, Required: true},
	{Key: "total_assets", DisplayName: "Total Assets", Statement: StatementBalance, Required: true},
	{Key: "total_liabilities", DisplayName: "Total Liabilities", Statement: StatementBalance, Required: true},
	{Key: "stockholders_equity", DisplayName: "Stockholders' Equity", Statement: StatementBalance, Required: true},
	{Key: "total_debt", DisplayName: "Total Debt", Statement: StatementBalance, Required: true},
	{Key: "intangible_assets", DisplayName: "Intangible Assets", Statement: StatementBalance, Required: true},
	{Key: "goodwill", DisplayName: "Goodwill", Statement: StatementBalance, Required: true},

	// Cash flow
	{Key: "cash_from_operations", DisplayName: "Cash from Operations", Statement: StatementCashFlow},
	{Key: "cash_from_investing", DisplayName: "Cash from Investing", Statement: StatementCashFlow},
	{Key: "cash_from_financing", DisplayName: "Cash from Financing", Statement: StatementCashFlow},
	{Key: "net_change_in_cash", DisplayName: "Net Change in Cash", Statement: StatementCashFlow},
}

// derivedDisplayNames covers metrics and ratios computed downstream of the
// extracted line items. They share the flat namespace but are never extracted.
var derivedDisplayNames = map[string]string{
	"top_line_revenue":         "Top Line Revenue",
	"gross_profit_margin":      "Gross Profit Margin",
	"operating_income_margin":  "Operating Income Margin",
	"ebitda":                   "EBITDA",
	"ebitda_margin":            "EBITDA Margin",
	"adjusted_ebitda":          "Adjusted EBITDA",
	"adjusted_ebitda_margin":   "Adjusted EBITDA Margin",
	"net_income_margin":        "Net Income Margin",
	"cash_balance":             "Cash Balance",
	"tangible_net_worth":       "Tangible Net Worth",
	"current_ratio":            "Current Ratio",
	"cash_ratio":               "Cash Ratio",
	"debt_to_equity":           "Debt-to-Equity Ratio",
	"ebitda_interest_coverage": "EBITDA Interest Coverage",
	"net_debt":                 "Net Debt",
	"net_debt_to_ebitda":       "Net Debt / EBITDA",
	"net_debt_to_adj_ebitda":   "Net Debt / Adj. EBITDA",
	"days_sales_outstanding":   "Days Sales Outstanding",
	"working_capital":          "Working Capital",
	"return_on_assets":         "Return on Assets",
	"return_on_equity":         "Return on Equity",
}

// Registry is an indexed view of the canonical line-item table.
type Registry struct {
	Items    []LineItem
	byKey    map[string]*LineItem
	required []string
}

var defaultRegistry = NewRegistry(lineItems)

// Default returns the registry for the current schema version.
func Default() *Registry { return defaultRegistry }

// NewRegistry builds a Registry with indexed lookups.
func NewRegistry(items []LineItem) *Registry {
	r := &Registry{Items: items, byKey: make(map[string]*LineItem, len(items))}
	for i := range r.Items {
		it := &r.Items[i]
		r.byKey[it.Key] = it
		if it.Required {
			r.required = append(r.required, it.Key)
		}
	}
	return r
}

// ByKey returns the line item for key, or nil if the key is not canonical.
func (r *Registry) ByKey(key string) *LineItem {
	return r.byKey[key]
}

// Has reports whether key is a canonical extracted line item.
func (r *Registry) Has(key string) bool {
	return r.byKey[key] != nil
}

// RequiredKeys returns the keys the extractor must attempt, in table order.
func (r *Registry) RequiredKeys() []string {
	out := make([]string, len(r.required))
	copy(out, r.required)
	return out
}

// StatementKeys returns the keys belonging to one statement, in table order.
func (r *Registry) StatementKeys(statement string) []string {
	var out []string
	for i := range r.Items {
		if r.Items[i].Statement == statement {
			out = append(out, r.Items[i].Key)
		}
	}
	return out
}

// DisplayName resolves a human-readable name for any key in the namespace,
// extracted or derived. Unknown keys fall back to the key itself.
func DisplayName(key string) string {
	if it := defaultRegistry.byKey[key]; it != nil {
		return it.DisplayName
	}
	if name, ok := derivedDisplayNames[key]; ok {
		return name
	}
	return key
}
