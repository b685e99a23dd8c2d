package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jpark8215/internal-chatbot/internal/domain"
	"github.com/spf13/cobra"
)

func FeedbackCmd() *cobra.Command {
	var (
		helpful    bool
		notHelpful bool
	)

	cmd := &cobra.Command{
		Use:   "feedback <query> <source-file>",
		Short: "Record whether a source answered a query",
		Long:  "Store helpful/unhelpful feedback for a source. Retrieval boosts sources with positive feedback for similar queries.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if helpful == notHelpful {
				return fmt.Errorf("exactly one of --helpful or --not-helpful is required")
			}

			source := args[1]
			if abs, err := filepath.Abs(source); err == nil {
				source = abs
			}
			fb := &domain.SourceFeedback{
				Query:      args[0],
				SourceFile: source,
				Helpful:    helpful,
			}

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

			if err := a.feedback.RecordFeedback(ctx, fb); err != nil {
				return fmt.Errorf("failed to record feedback: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Feedback recorded (%s)\n", fb.ID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&helpful, "helpful", false, "The source answered the query")
	cmd.Flags().BoolVar(&notHelpful, "not-helpful", false, "The source did not answer the query")
	cmd.MarkFlagsMutuallyExclusive("helpful", "not-helpful")

	return cmd
}
