// Package app provides the top-level application lifecycle for the arena
// settlement service. It wires the engine to its stores, caches, blob storage
// and notifications, and runs the configured operating mode.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/DIGIX666/Arena/internal/config"
)

// Args are the command-line inputs of the one-shot modes.
type Args struct {
	// RaffleID and User select the voucher to sign in voucher mode.
	RaffleID uint64
	User     string
}

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	args    Args
	out     io.Writer
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger. Reports
// and vouchers are printed to stdout.
func New(cfg *config.Config, args Args, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		args:   args,
		out:    os.Stdout,
		logger: logger.With(slog.String("component", "app")),
	}
}

// SetOutput redirects what report and voucher modes print.
func (a *App) SetOutput(w io.Writer) { a.out = w }

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, and blocks until the mode finishes or the context is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "voucher":
		return a.VoucherMode(ctx)
	case "encrypt-key":
		return a.EncryptKeyMode(ctx)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch mode {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "archive":
		return a.ArchiveMode(ctx, deps)
	case "report":
		return a.ReportMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
