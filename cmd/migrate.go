package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/stockroom/internal/storage/postgres"
)

var migrate = postgres.Migrate

// newMigrateCmd creates the 'migrate' subcommand, which applies pending
// schema migrations to db.dsn.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Applies database schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			if cfg.DB.DSN == "" {
				return errors.New("db.dsn must be set to migrate")
			}
			if err := migrate(cmd.Context(), cfg.DB.DSN); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			cmd.Println("schema up to date")
			return nil
		},
	}
}
