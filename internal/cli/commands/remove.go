package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func RemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <path>",
		Short: "Remove a source and its chunks",
		Long:  "Delete every chunk stored for a source file and invalidate the cache entries derived from it.",
		Args:  cobra.ExactArgs(1),
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

			removed, err := a.registry.RemoveSource(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to remove %s: %w", args[0], err)
			}

			if outputJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]any{"source_file": args[0], "chunks_removed": removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%d chunks)\n", args[0], removed)
			return nil
		},
	}

	addOutputFlag(cmd)

	return cmd
}
