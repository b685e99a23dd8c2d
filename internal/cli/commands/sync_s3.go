package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func SyncS3Cmd() *cobra.Command {
	var ingest bool

	cmd := &cobra.Command{
		Use:   "sync-s3",
		Short: "Mirror the S3 document bucket into the ingest path",
		Long:  "Download new or changed objects under CHATBOT_S3_PREFIX into CHATBOT_INGEST_PATH. Local files are never deleted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.HasS3() {
				return fmt.Errorf("S3 is not configured: CHATBOT_S3_ENDPOINT, CHATBOT_S3_ACCESS_KEY_ID and CHATBOT_S3_SECRET_ACCESS_KEY are required")
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			mirror, err := a.s3Mirror(ctx)
			if err != nil {
				return err
			}
			report, err := mirror.Sync(ctx)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Listed %d objects in %s: %d downloaded, %d unchanged, %d skipped, %d failed\n",
				report.Listed, report.Duration.Round(time.Millisecond), len(report.Downloaded), report.Unchanged, report.Skipped, len(report.Errors))
			for _, path := range report.Downloaded {
				fmt.Fprintf(w, "  downloaded: %s\n", path)
			}
			for key, err := range report.Errors {
				fmt.Fprintf(w, "  ! %s: %v\n", key, err)
			}

			if ingest && len(report.Downloaded) > 0 {
				ingestReport, err := a.ingest.IngestIncremental(ctx, cfg.IngestPath)
				if err != nil {
					return fmt.Errorf("ingestion failed: %w", err)
				}
				printIngestReport(w, ingestReport)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ingest, "ingest", false, "Run an incremental ingestion after downloading")

	return cmd
}
