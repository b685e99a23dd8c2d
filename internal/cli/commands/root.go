package commands

import (
	"github.com/jpark8215/internal-chatbot/internal/cli"
	"github.com/spf13/cobra"
)

// NewRootCmd assembles the chatbotd command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "chatbotd",
		Short:         "Internal document chatbot daemon and CLI",
		Long:          "chatbotd ingests internal documents into Postgres/pgvector and retrieves them for question answering.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(
		ServeCmd(),
		IngestCmd(),
		QueryCmd(),
		StatusCmd(),
		CleanupCmd(),
		RemoveCmd(),
		FeedbackCmd(),
		SyncS3Cmd(),
		MigrateCmd(),
	)

	return rootCmd
}
