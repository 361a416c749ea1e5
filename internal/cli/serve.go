package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pedro17pedroo/SGST-sub001/internal/config"
	"github.com/pedro17pedroo/SGST-sub001/internal/logger"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Boot the module system and serve HTTP",
		Long: `Load the catalogue, restore persisted module state, register every
enabled module and serve the API until interrupted.

Boot validation failures exit before the listener opens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "loading config", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port (overrides server.port)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	l, err := logger.New(logger.Options{Level: cfg.Log.Level, Prefix: "sgst", JSON: cfg.Log.JSON, Output: os.Stderr})
	if err != nil {
		return WrapExitError(ExitCommandError, "configuring logger", err)
	}

	app, err := Boot(ctx, cfg, l)
	if err != nil {
		return WrapExitError(ExitFailure, "boot failed", err)
	}

	handler, report := app.Handler(ctx)
	for _, s := range report.Skipped {
		l.Warn("Module not mounted", "module", s.ID, "reason", s.Reason, "error", s.Err)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info("Starting sgst server", "addr", srv.Addr, "modules", len(report.Registered))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			app.Close(context.Background())
			return WrapExitError(ExitFailure, "server failed", err)
		}
	case <-ctx.Done():
	}

	l.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}

	l.Info("Server exited")
	return nil
}
