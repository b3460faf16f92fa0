package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spread-cli/internal/session"
)

var editCmd = &cobra.Command{
	Use:   "edit <session-id> <metric-key>",
	Short: "Override or clear an extracted value",
	Long:  "Applies an overlay correction to one line item. Raw extracted values are never modified; clearing an override restores them.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		edit := session.Edit{MetricKey: args[1]}
		if cmd.Flags().Changed("value") {
			v, _ := cmd.Flags().GetFloat64("value")
			edit.Value = &v
		}
		if cmd.Flags().Changed("prior") {
			v, _ := cmd.Flags().GetFloat64("prior")
			edit.ValuePrior = &v
		}
		edit.ClearValue, _ = cmd.Flags().GetBool("clear-value")
		edit.ClearValuePrior, _ = cmd.Flags().GetBool("clear-prior")

		if edit.Value == nil && edit.ValuePrior == nil && !edit.ClearValue && !edit.ClearValuePrior {
			return eris.New("nothing to do: set --value/--prior or --clear-value/--clear-prior")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "edit")
		}
		if sess.Approved {
			return eris.New("session is approved; edits are closed")
		}

		if err := sess.ApplyEdit(edit); err != nil {
			return eris.Wrap(err, "edit")
		}
		if err := st.UpdateSession(ctx, sess); err != nil {
			return eris.Wrap(err, "edit")
		}

		zap.L().Info("edit applied",
			zap.String("session_id", sess.ID),
			zap.String("metric", edit.MetricKey),
			zap.Int("overrides", sess.Overlay.Len()),
		)
		return nil
	},
}

func init() {
	editCmd.Flags().Float64("value", 0, "override for the current-period value")
	editCmd.Flags().Float64("prior", 0, "override for the prior-period value")
	editCmd.Flags().Bool("clear-value", false, "remove the current-period override")
	editCmd.Flags().Bool("clear-prior", false, "remove the prior-period override")
	rootCmd.AddCommand(editCmd)
}
