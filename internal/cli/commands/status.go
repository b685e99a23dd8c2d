package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/jpark8215/internal-chatbot/internal/service"
	"github.com/spf13/cobra"
)

type statusReport struct {
	Sources *service.SourceStats       `json:"sources"`
	Sync    *service.SyncStatus        `json:"sync,omitempty"`
	Recent  []domain.RetrievalLogEntry `json:"recent_retrievals,omitempty"`
}

func StatusCmd() *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store contents and sync state",
		Long:  "Report chunk counts per source, compare the store with CHATBOT_INGEST_PATH and list recent retrievals.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var report statusReport
			report.Sources, err = a.registry.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to read store stats: %w", err)
			}
			if cfg.HasIngestPath() {
				report.Sync, err = a.cleanup.SyncStatus(ctx, cfg.IngestPath)
				if err != nil {
					return fmt.Errorf("failed to compare with %s: %w", cfg.IngestPath, err)
				}
			}
			if recent > 0 {
				report.Recent, err = a.logs.ListRecent(ctx, recent)
				if err != nil {
					return fmt.Errorf("failed to list retrievals: %w", err)
				}
			}

			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), report)
			}
			printStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 0, "Also list the N most recent retrievals")
	addOutputFlag(cmd)

	return cmd
}

func printStatus(w io.Writer, r statusReport) {
	fmt.Fprintf(w, "Chunks stored: %d across %d sources\n", r.Sources.TotalChunks, len(r.Sources.Sources))
	for _, sc := range r.Sources.Sources {
		fmt.Fprintf(w, "  %6d  %s\n", sc.Count, sc.SourceFile)
	}

	if r.Sync != nil {
		fmt.Fprintln(w)
		state := "in sync"
		if !r.Sync.InSync {
			state = "out of sync"
		}
		fmt.Fprintf(w, "%s: %s (%d synchronized)\n", r.Sync.Root, state, r.Sync.Synchronized)
		for _, p := range r.Sync.Orphaned {
			fmt.Fprintf(w, "  orphaned: %s\n", p)
		}
		for _, p := range r.Sync.Missing {
			fmt.Fprintf(w, "  missing:  %s\n", p)
		}
	}

	if len(r.Recent) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recent retrievals:")
		for _, e := range r.Recent {
			hit := ""
			if e.CacheHit {
				hit = " cached"
			}
			fmt.Fprintf(w, "  %s  %-8s %2d results %5dms%s  %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Strategy, e.ResultCount, e.DurationMs, hit, truncate(e.Query, 60))
		}
	}
}
