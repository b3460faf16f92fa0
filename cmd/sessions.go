package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/spread-cli/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect review sessions",
	Long:  "Commands for listing and viewing review sessions.",
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ticker, _ := cmd.Flags().GetString("ticker")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.SessionFilter{Ticker: ticker, Limit: limit}
		if cmd.Flags().Changed("approved") {
			approved, _ := cmd.Flags().GetBool("approved")
			filter.Approved = &approved
		}

		infos, err := st.ListSessions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}

		if len(infos) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}

		formatSessionsList(os.Stdout, infos)
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show full details of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if snapshot, _ := cmd.Flags().GetBool("snapshot"); snapshot {
			snap, err := st.GetSnapshot(ctx, args[0])
			if err != nil {
				return eris.Wrap(err, "sessions show")
			}
			return enc.Encode(snap)
		}

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}
		return enc.Encode(sess)
	},
}

func init() {
	sessionsListCmd.Flags().String("ticker", "", "filter by ticker")
	sessionsListCmd.Flags().Bool("approved", false, "filter by approval state")
	sessionsListCmd.Flags().Int("limit", 50, "max number of sessions to display")

	sessionsShowCmd.Flags().Bool("snapshot", false, "show the latest approval snapshot instead of the live session")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// formatSessionsList writes a tabular list of sessions to w.
func formatSessionsList(out io.Writer, infos []store.SessionInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTICKER\tCOMPANY\tFY END\tEDITS\tAPPROVED\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t------\t-----\t--------\t-------")

	for _, info := range infos {
		company := info.CompanyName
		if len(company) > 30 {
			company = company[:27] + "..."
		}

		approved := ""
		if info.Approved {
			approved = "yes"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(info.ID),
			info.Ticker,
			company,
			info.FiscalYearEnd,
			info.EditCount,
			approved,
			info.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
