package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "vm-relay",
		Short: "Relay unread RingCentral voicemails to a chat webhook",
		Long: `vm-relay reads unread voicemails on one RingCentral extension, posts each one
to a Discord-style webhook and marks it read once the webhook accepted it.

Run without a subcommand it performs a single pass, which suits cron.`,
		SilenceUsage: true,
		RunE:         runPass,
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (optional, env wins)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(historyCmd)
}
