package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func CleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup [root]",
		Short: "Remove sources whose files no longer exist",
		Long:  "Delete chunks and registry rows for every stored source under root that is gone from disk. Defaults to CHATBOT_INGEST_PATH.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			root := cfg.IngestPath
			if len(args) == 1 {
				root = args[0]
			}
			if root == "" {
				return fmt.Errorf("no root given and CHATBOT_INGEST_PATH is not set")
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.cleanup.CleanupOrphans(ctx, root)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}

			w := cmd.OutOrStdout()
			if outputJSON(cmd) {
				errs := make(map[string]string, len(report.Errors))
				for _, fe := range report.Errors {
					errs[fe.Path] = fe.Err.Error()
				}
				return printJSON(w, map[string]any{
					"checked":        report.Checked,
					"removed":        report.Removed,
					"chunks_removed": report.ChunksRemoved,
					"errors":         errs,
					"duration_ms":    report.Duration.Milliseconds(),
				})
			}

			fmt.Fprintf(w, "Checked %d sources in %s, removed %d (%d chunks)\n",
				report.Checked, report.Duration.Round(time.Millisecond), len(report.Removed), report.ChunksRemoved)
			for _, p := range report.Removed {
				fmt.Fprintf(w, "  removed: %s\n", p)
			}
			for _, fe := range report.Errors {
				fmt.Fprintf(w, "  ! %s: %v\n", fe.Path, fe.Err)
			}
			return nil
		},
	}

	addOutputFlag(cmd)

	return cmd
}
