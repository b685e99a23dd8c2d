package main

import (
	"fmt"
	"os"

	"github.com/jpark8215/internal-chatbot/internal/cli"
	"github.com/jpark8215/internal-chatbot/internal/cli/commands"
)

func main() {
	rootCmd := commands.NewRootCmd()

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
