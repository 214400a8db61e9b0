package cmd

import (
	"fmt"

	"github.com/jmehdipour/vm-relay/internal/config"
	"github.com/jmehdipour/vm-relay/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the delivery journal schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadJournalConfig()
		if err != nil {
			return err
		}

		dbx, err := openJournal(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer dbx.Close()

		logger.Log.Info("journal migrated", zap.String("driver", cfg.Journal.Driver))
		fmt.Println(">> Migration complete")
		return nil
	},
}

// loadJournalConfig loads config for commands that only touch the journal; they
// do not need provider credentials.
func loadJournalConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	if err := cfg.ValidateJournal(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
