package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	logger = logger.With(zap.String("component", "migrate"))
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := persistence.OpenStore(ctx, *cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	runner, err := store.Migrator(logger)
	if err != nil {
		logger.Error("failed to configure migration runner", zap.Error(err))
		os.Exit(1)
	}

	switch *command {
	case "up":
		err = runner.Up(ctx)
	case "status":
		err = runner.Status(ctx)
	case "down":
		err = runner.Down(ctx, *target)
	default:
		logger.Error("unsupported command", zap.String("command", *command))
		os.Exit(1)
	}
	if err != nil {
		logger.Error("migration command failed", zap.String("command", *command), zap.Error(err))
		os.Exit(1)
	}

	version, err := runner.Version(ctx)
	if err != nil {
		logger.Warn("unable to read schema version", zap.Error(err))
	}
	logger.Info("migration command completed", zap.String("command", *command), zap.Int64("version", version))
}
