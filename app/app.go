package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/searchktools/scratch-server/config"
	"github.com/searchktools/scratch-server/core"
	"github.com/searchktools/scratch-server/core/observability"
)

// ShutdownTimeout bounds how long in-flight jobs get to finish on exit
const ShutdownTimeout = 10 * time.Second

// App is the application instance wrapping the engine
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *core.Engine

	shutdownTelemetry observability.ShutdownFunc
}

// New creates an application instance. Telemetry providers are installed
// before the engine so its instruments bind to them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	shutdownTelemetry, err := observability.SetupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("app: telemetry: %w", err)
	}

	logger := observability.NewLogger(level, cfg.Telemetry)

	engine, err := core.NewEngine(core.EngineConfig{
		Addr:    cfg.Addr,
		BaseDir: cfg.Directory,
		Workers: cfg.Workers,
		Logger:  logger,
	})
	if err != nil {
		return nil, errors.Join(err, shutdownTelemetry(ctx))
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		engine:            engine,
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// Engine returns the underlying engine
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully. A bind failure is returned immediately.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := a.engine.Listen(ctx)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return errors.Join(err, a.engine.Shutdown(shutdownCtx), a.shutdownTelemetry(shutdownCtx))
	}

	log.Printf("HTTP server listening on %s, serving %s with %d workers", ln.Addr(), a.cfg.Directory, a.cfg.Workers)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- a.engine.Serve(ln)
	}()

	var serveErr error
	select {
	case serveErr = <-serverErrCh:
	case <-ctx.Done():
		a.logger.Info("shutting down", "reason", context.Cause(ctx))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	err = errors.Join(serveErr, a.engine.Shutdown(shutdownCtx))
	if serveErr == nil {
		err = errors.Join(err, <-serverErrCh)
	}
	return errors.Join(err, a.shutdownTelemetry(shutdownCtx))
}

// Main is the process entry point: load configuration, run, exit non-zero on
// failure
func Main() {
	cfg := config.New()

	a, err := New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Server startup failed: %v", err)
	}

	if err := a.Run(context.Background()); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
