package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpSrv "github.com/jmehdipour/vm-relay/internal/http"
	"github.com/jmehdipour/vm-relay/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Relay unread voicemails every poll interval until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		interval := a.cfg.PollInterval()

		var server *httpSrv.Server
		if a.cfg.HTTP.Addr != "" {
			// three missed passes mark the process unhealthy
			server = httpSrv.NewServer(a.relay, 3*interval)
			go func() {
				if err := server.Start(a.cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Log.Error("http server exited", zap.Error(err))
				}
			}()
		}

		err = a.relay.Poll(ctx, interval)

		if server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}

		if err != nil {
			return exitError("poll failed", err)
		}
		logger.Log.Info("poll stopped")
		return nil
	},
}
