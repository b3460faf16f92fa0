package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spread-cli/internal/store"
)

var approveCmd = &cobra.Command{
	Use:   "approve <session-id>",
	Short: "Approve a session and freeze its overlay into a snapshot",
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
			return eris.Wrap(err, "approve")
		}
		if sess.Approved {
			return eris.New("session already approved")
		}

		results := newEngine().Recompute(sess)
		if results.Verification.ErrorCount() > 0 {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				return eris.Errorf("%d error-severity checks failing; fix the values or pass --force",
					results.Verification.ErrorCount())
			}
		}

		snap := &store.Snapshot{
			SessionID: sess.ID,
			Overlay:   sess.Approve(time.Now()),
			Results:   results,
		}

		if err := st.UpdateSession(ctx, sess); err != nil {
			return eris.Wrap(err, "approve")
		}
		if err := st.SaveSnapshot(ctx, snap); err != nil {
			return eris.Wrap(err, "approve")
		}

		zap.L().Info("session approved",
			zap.String("session_id", sess.ID),
			zap.String("snapshot_id", snap.ID),
			zap.Int("overrides", len(snap.Overlay)),
			zap.Int("failed_checks", results.Verification.FailCount()),
		)
		return nil
	},
}

func init() {
	approveCmd.Flags().Bool("force", false, "approve even with error-severity check failures")
	rootCmd.AddCommand(approveCmd)
}
