// Command dashctl runs maintenance tasks against the dashboard database:
// schema migration, account bootstrap, backfill previews and sample data import.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/Gopher0727/ProfDash/cmd/dashctl/internal/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dashctl",
		Short:         "Maintenance CLI for the professor dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	commands.Register(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
