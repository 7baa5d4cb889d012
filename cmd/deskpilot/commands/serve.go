package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deskpilot/deskpilot/internal/logging"
	"github.com/deskpilot/deskpilot/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for the desktop UI",
	Long: `Start deskpilot as a server exposing chat, sessions, attachments,
tools and a server-sent event stream over HTTP.

The port comes from --port, then "server.port" in the config, then 4317.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.orch.ForwardTo(a.bus)

	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	if _, err := a.metrics.Consume(metricsCtx, a.bus); err != nil {
		logging.Warn().Err(err).Msg("metrics disabled")
	}

	cfg := server.ConfigFrom(a.source.Config().Server)
	if servePort > 0 {
		cfg.Port = servePort
	}
	srv := server.New(cfg, server.Deps{
		Orchestrator: a.orch,
		Tools:        a.tools,
		Bus:          a.bus,
		History:      a.history,
		Metrics:      a.metrics,
		MCP:          a.mcp,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("server shutdown error")
	}
	return nil
}
