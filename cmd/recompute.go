package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/spread-cli/internal/calc"
	"github.com/sells-group/spread-cli/internal/schema"
)

var recomputeJSON bool

var recomputeCmd = &cobra.Command{
	Use:   "recompute <session-id>",
	Short: "Recompute metrics, ratios, and checks for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "recompute")
		}

		results := newEngine().Recompute(sess)

		if recomputeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}

		formatResults(os.Stdout, results)
		return nil
	},
}

func init() {
	recomputeCmd.Flags().BoolVar(&recomputeJSON, "json", false, "emit full results as JSON")
	rootCmd.AddCommand(recomputeCmd)
}

// formatResults writes a readable summary of one recomputation to out.
func formatResults(out io.Writer, results *calc.Results) {
	p := message.NewPrinter(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "METRIC\tCURRENT\tPRIOR")
	m := results.Metrics
	_, _ = p.Fprintf(w, "Top Line Revenue\t%.0f\t%.0f\n", m.TopLineRevenue, m.TopLineRevenuePrior)
	_, _ = p.Fprintf(w, "Gross Profit\t%.0f\t%.0f\n", m.GrossProfit, m.GrossProfitPrior)
	_, _ = fmt.Fprintf(w, "Gross Profit Margin\t%.1f%%\t%.1f%%\n", m.GrossProfitMargin*100, m.GrossProfitMarginPrior*100)
	_, _ = p.Fprintf(w, "Operating Income\t%.0f\t%.0f\n", m.OperatingIncome, m.OperatingIncomePrior)
	_, _ = p.Fprintf(w, "EBITDA\t%.0f\t%.0f\n", m.EBITDA, m.EBITDAPrior)
	_, _ = p.Fprintf(w, "Adjusted EBITDA\t%.0f\t%.0f\n", m.AdjustedEBITDA, m.AdjustedEBITDAPrior)
	_, _ = p.Fprintf(w, "Net Income\t%.0f\t%.0f\n", m.NetIncome, m.NetIncomePrior)
	_, _ = p.Fprintf(w, "Tangible Net Worth\t%.0f\t%.0f\n", m.TangibleNetWorth, m.TangibleNetWorthPrior)

	r := results.Ratios
	_, _ = fmt.Fprintln(w, "\nRATIO\tCURRENT\tPRIOR")
	_, _ = fmt.Fprintf(w, "Current Ratio\t%.2f\t%.2f\n", r.CurrentRatio, r.CurrentRatioPrior)
	_, _ = fmt.Fprintf(w, "Debt-to-Equity\t%.2f\t%.2f\n", r.DebtToEquity, r.DebtToEquityPrior)
	_, _ = fmt.Fprintf(w, "Net Debt / EBITDA\t%.2f\t%.2f\n", r.NetDebtToEBITDA, r.NetDebtToEBITDAPrior)
	_, _ = fmt.Fprintf(w, "EBITDA Interest Coverage\t%.2f\t%.2f\n", r.EBITDAInterestCoverage, r.EBITDAInterestCoveragePrior)
	_, _ = p.Fprintf(w, "Working Capital\t%.0f\t%.0f\n", r.WorkingCapital, r.WorkingCapitalPrior)
	_, _ = fmt.Fprintf(w, "Return on Equity\t%.1f%%\t%.1f%%\n", r.ReturnOnEquity*100, r.ReturnOnEquityPrior*100)
	_ = w.Flush()

	v := results.Verification
	_, _ = fmt.Fprintf(out, "\nVerification: %d passed, %d failed (%d errors, %d warnings), %d skipped\n",
		v.PassCount(), v.FailCount(), v.ErrorCount(), v.WarningCount(), v.SkipCount())

	for _, check := range v.Checks {
		if check.Skipped || check.Passed {
			continue
		}
		_, _ = p.Fprintf(out, "  [%s] %s (%s): difference %.2f exceeds tolerance %.2f\n",
			check.Severity, check.Description, periodLabel(check.Period), check.Difference, check.Tolerance)
	}
}

func periodLabel(p schema.Period) string {
	if p == schema.PeriodPrior {
		return "prior year"
	}
	return "current year"
}
