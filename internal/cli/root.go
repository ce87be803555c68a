package cli

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clover",
		Short: "Vehicle listing deduplication and fuzzy matching",
		Long: `Clover decides whether scraped vehicle listings describe vehicles that are
already known, either one listing at a time or in large batches.

The worker consumes listing batches from Kafka and emits duplicate and review
events; the match and dedupe commands run the same pipeline against a file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newMatchCmd())
	cmd.AddCommand(newDedupeCmd())

	return cmd
}
