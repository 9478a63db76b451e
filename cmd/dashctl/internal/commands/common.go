package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/config"
	"github.com/Gopher0727/ProfDash/internal/storage"
)

// Register adds every dashctl sub-command to root.
func Register(root *cobra.Command) {
	root.PersistentFlags().String("config", "./config.toml", "path to config file")

	root.AddCommand(
		newMigrateCmd(),
		newCreateAdminCmd(),
		newBackfillCmd(),
		newImportTranscriptsCmd(),
	)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(path)
}

// openDB connects with the configured driver and makes sure the schema is current.
func openDB(cmd *cobra.Command) (*config.Config, *gorm.DB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.NewDB(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := storage.Migrate(db); err != nil {
		_ = storage.Close(db)
		return nil, nil, err
	}
	return cfg, db, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer storage.Close(db)
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

// noBroadcast drops live dashboard updates; the CLI has no websocket clients.
type noBroadcast struct{}

func (noBroadcast) BroadcastToGroup(uint, any) {}

func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
