package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/spread-cli/internal/session"
)

var importCmd = &cobra.Command{
	Use:   "import <extraction-file>",
	Short: "Import an extraction result and open a review session",
	Long:  "Reads an extractor output document (JSON or YAML), validates its metric keys against the canonical schema, and creates a review session.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		res, err := loadExtraction(args[0])
		if err != nil {
			return err
		}

		sess, err := session.FromExtraction(res)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.PutSession(ctx, sess); err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("session created",
			zap.String("session_id", sess.ID),
			zap.String("ticker", sess.Ticker),
			zap.Int("raw_values", len(sess.Raw)),
			zap.Int("unmapped", len(sess.Unmapped)),
			zap.Int("not_found", len(sess.NotFound)),
		)
		fmt.Println(sess.ID)
		return nil
	},
}

// loadExtraction parses an extraction document. YAML input goes through a
// JSON round trip so both formats share the canonical field names.
func loadExtraction(path string) (session.ExtractionResult, error) {
	var res session.ExtractionResult

	data, err := os.ReadFile(path)
	if err != nil {
		return res, eris.Wrapf(err, "import: read %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return res, eris.Wrap(err, "import: parse yaml")
		}
		data, err = json.Marshal(doc)
		if err != nil {
			return res, eris.Wrap(err, "import: convert yaml")
		}
	}

	if err := json.Unmarshal(data, &res); err != nil {
		return res, eris.Wrap(err, "import: parse extraction")
	}
	return res, nil
}

func init() {
	rootCmd.AddCommand(importCmd)
}
