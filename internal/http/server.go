package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/vm-relay/internal/logger"
	"github.com/jmehdipour/vm-relay/internal/relay"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// StatusSource reports the most recent relay pass and the one in progress, if any.
type StatusSource interface {
	LastPass() relay.Pass
	Running() (time.Time, bool)
}

type Server struct{ e *echo.Echo }

// NewServer exposes health and metrics while `poll` is running. staleAfter is how
// long a pass may be missing before /healthz reports unhealthy.
func NewServer(status StatusSource, staleAfter time.Duration) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMid.Recover())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", healthHandler(status, staleAfter, time.Now))

	return &Server{e: e}
}

func healthHandler(status StatusSource, staleAfter time.Duration, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		pass := status.LastPass()
		since, running := status.Running()

		body := map[string]any{}
		if running {
			body["running_since"] = since
		}
		if pass.Finished.IsZero() {
			body["status"] = "starting"
			return c.JSON(http.StatusOK, body)
		}
		body["last_pass"] = pass

		// a pass in progress counts as activity however long it takes; every
		// call it makes is bounded by a client timeout
		code := http.StatusOK
		state := "ok"
		switch {
		case pass.Err != "":
			code, state = http.StatusServiceUnavailable, "failing"
		case running:
			state = "running"
		case staleAfter > 0 && now().Sub(pass.Finished) > staleAfter:
			code, state = http.StatusServiceUnavailable, "stale"
		}

		body["status"] = state
		return c.JSON(code, body)
	}
}

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
