// Package main implements the entry point for the task agent server, which
// accepts asynchronous work over HTTP, executes it under a bounded
// concurrency limit, and serves task status and aggregate metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fenwick-io/task-agent/internal/config"
	"github.com/fenwick-io/task-agent/internal/platform/logger"
	"github.com/fenwick-io/task-agent/internal/store"
	"github.com/fenwick-io/task-agent/internal/task"
)

// shutdownGrace bounds how long shutdown waits for in-flight tasks to drain.
const shutdownGrace = 10 * time.Second

// application holds the wired dependencies of the running server.
type application struct {
	config *config.Config
	logger *slog.Logger
	engine *task.Engine
}

// main is the entry point for the task agent server. It initializes
// configuration, sets up logging, constructs the task lifecycle engine, and
// starts the HTTP server with graceful shutdown.
func main() {
	app, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.run(); err != nil {
		app.logger.Error("server terminated with error", "error", err)
		os.Exit(1)
	}
}

// initializeApp loads configuration and sets up application components.
// Returns the wired application and any initialization error.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)

	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"max_concurrent_tasks", cfg.Tasks.MaxConcurrentTasks,
		"timeout_seconds", cfg.Tasks.TimeoutSeconds,
		"task_retention_hours", cfg.Tasks.TaskRetentionHours,
		"max_tasks_count", cfg.Tasks.MaxTasksCount)

	engine := task.NewEngine(
		store.NewMemoryTaskStore(),
		task.Config{
			MaxConcurrentTasks: cfg.Tasks.MaxConcurrentTasks,
			Timeout:            time.Duration(cfg.Tasks.TimeoutSeconds) * time.Second,
			Retention:          time.Duration(cfg.Tasks.TaskRetentionHours) * time.Hour,
			MaxTaskCount:       cfg.Tasks.MaxTasksCount,
			SweepInterval:      time.Duration(cfg.Tasks.SweepIntervalMinutes) * time.Minute,
		},
		inferenceWork,
		appLogger,
		prometheus.DefaultRegisterer,
	)

	return &application{
		config: cfg,
		logger: appLogger,
		engine: engine,
	}, nil
}

// run starts the engine and the HTTP server, then blocks until an interrupt
// or termination signal triggers graceful shutdown.
func (app *application) run() error {
	app.engine.Start()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		app.engine.Stop(shutdownGrace)
		return fmt.Errorf("HTTP server failed: %w", err)
	case sig := <-stop:
		app.logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("HTTP server shutdown failed", "error", err)
	}

	app.engine.Stop(shutdownGrace)
	return nil
}
