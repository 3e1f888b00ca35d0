package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/app"
	"github.com/markdave123-py/botwise/internal/config"
	"github.com/markdave123-py/botwise/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "botwise: %v\n", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so every deferred Close runs.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer application.Close()

	application.StartWorkers(context.Background())

	serverErr := make(chan error, 1)
	go func() { serverErr <- application.Server.Start() }()
	log.Info("botwise is running", zap.String("port", cfg.Port))

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		if runErr != nil {
			log.Error("server error", zap.Error(runErr))
		}
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	if err := application.StopWorkers(shutdownCtx); err != nil {
		log.Warn("ingestion workers", zap.Error(err))
	}
	return runErr
}
