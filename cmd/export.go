package main

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spread-cli/internal/export"
	"github.com/sells-group/spread-cli/internal/session"
	"github.com/sells-group/spread-cli/internal/store"
)

var (
	exportDir string
	exportAll bool
)

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export session workbooks",
	Long:  "Renders one session, or every approved session with --all, into XLSX workbooks with live calculation formulas.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dir := exportDir
		if dir == "" {
			dir = cfg.Export.Dir
		}

		if exportAll {
			return exportApproved(cmd, st, dir)
		}
		if len(args) == 0 {
			return eris.New("session id required unless --all is set")
		}

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export")
		}
		return exportOne(dir, sess)
	},
}

func exportOne(dir string, sess *session.Session) error {
	path := filepath.Join(dir, export.Filename(sess))
	if err := export.Write(path, sess, newEngine().Recompute(sess)); err != nil {
		return err
	}
	zap.L().Info("workbook written",
		zap.String("session_id", sess.ID),
		zap.String("path", path),
	)
	return nil
}

// exportApproved renders every approved session concurrently.
func exportApproved(cmd *cobra.Command, st store.Store, dir string) error {
	ctx := cmd.Context()

	approved := true
	infos, err := st.ListSessions(ctx, store.SessionFilter{Approved: &approved, Limit: 1000})
	if err != nil {
		return eris.Wrap(err, "export all")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, info := range infos {
		g.Go(func() error {
			sess, err := st.GetSession(ctx, info.ID)
			if err != nil {
				return eris.Wrapf(err, "export %s", info.ID)
			}
			return exportOne(dir, sess)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	zap.L().Info("export complete", zap.Int("sessions", len(infos)))
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "out", "", "output directory (default from config)")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "export every approved session")
	rootCmd.AddCommand(exportCmd)
}
