package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/vitesrv"
	"github.com/loykin/vitesrv/internal/config"
)

const shutdownTimeout = 10 * time.Second

// ServeFlags holds flags for serve command
type ServeFlags struct {
	Listen string
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the vitesrv daemon",
		Long: `Start the daemon that launches Vite processes on request.
Without a config file built-in defaults apply; VITESRV_* environment
variables override either.

Examples:
  vitesrv serve
  vitesrv serve vitesrv.toml
  vitesrv serve --listen 0.0.0.0:7070`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			if f.Listen != "" {
				cfg.Server.Listen = f.Listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "listen address, overrides [server] listen")
	return cmd
}

// runServe serves the API until ctx is done, then stops every server it launched.
func runServe(ctx context.Context, cfg *config.Config) error {
	host, err := vitesrv.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	log := host.Logger()
	srv := host.NewHTTPServer(cfg.Server.Listen)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("vitesrv listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath,
		"command", cfg.Tool.Command, "metrics", cfg.Metrics.Enabled, "history_sinks", len(cfg.HistoryDSNs()))

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Handlers blocked on readiness return once their processes are gone.
	httpDone := make(chan error, 1)
	go func() { httpDone <- srv.Shutdown(sctx) }()
	hostErr := host.Shutdown(sctx)
	httpErr := <-httpDone
	return errors.Join(serveErr, hostErr, httpErr)
}
