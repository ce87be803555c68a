package cli

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var (
		version int
		force   int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the listing store schema migrations",
		Example: `  # Migrate to the latest version
  clover migrate

  # Migrate to a specific version
  clover migrate --version 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			migration := a.cfg.Migration()
			if cmd.Flags().Changed("version") {
				migration.Version = uint(max(0, version))
			}
			if cmd.Flags().Changed("force") {
				migration.Force = force
			}

			db, err := a.connectDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			return a.migrate(db, migration)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Target migration version (0 migrates up to the latest)")
	cmd.Flags().IntVar(&force, "force", 0, "Force the recorded version before migrating")

	return cmd
}
