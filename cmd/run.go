package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Relay unread voicemails once and exit",
	RunE:  runPass,
}

func runPass(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	_, err = a.relay.RunOnce(ctx)
	a.pushMetrics()
	if err != nil {
		return exitError("relay pass failed", err)
	}
	return nil
}
