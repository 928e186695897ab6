package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/seriva/flowdeck/internal/api"
	"github.com/seriva/flowdeck/internal/engine"
	"github.com/seriva/flowdeck/internal/logging"
	"github.com/seriva/flowdeck/internal/plugins"
	"github.com/seriva/flowdeck/internal/scheduler"
	"github.com/seriva/flowdeck/internal/store"
	"github.com/seriva/flowdeck/internal/validation"
)

func main() {
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	// Runs are never resumed across a restart.
	swept, err := st.FailDanglingExecutions(ctx, "interrupted by restart")
	if err != nil {
		return err
	}
	if swept > 0 {
		logger.Warn("marked dangling executions failed", "count", swept)
	}

	catalog, err := plugins.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	validator, err := validation.NewWorkflowValidator(catalog)
	if err != nil {
		return err
	}

	invoker := engine.NewInvoker(engine.InvokerConfig{BaseURL: cfg.BaseURL})
	executor, err := engine.NewExecutor(engine.Config{
		Store:            st,
		Catalog:          catalog,
		Invoker:          invoker,
		TransformTimeout: cfg.transformTimeout(),
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(engine.NewScheduledRunner(st, executor), logger)
	if err := registerSchedules(ctx, st, sched, logger); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	server := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.NewServer(api.Deps{
			Store:     st,
			Validator: validator,
			Executor:  executor,
			Scheduler: sched,
			Catalog:   catalog,
			Logger:    logger,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("flowdeck listening", "addr", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// registerSchedules syncs every persisted workflow with the scheduler at boot.
func registerSchedules(ctx context.Context, st store.Store, sched *scheduler.Scheduler, logger *slog.Logger) error {
	workflows, err := st.ListWorkflows(ctx)
	if err != nil {
		return err
	}
	for _, wf := range workflows {
		if err := sched.Sync(wf); err != nil {
			// A bad persisted cron expression should not block boot.
			logger.Error("failed to schedule workflow", "workflow_id", wf.ID, "error", err)
		}
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(logging.NewCorrelationHandler(handler))
	slog.SetDefault(logger)
	return logger
}
