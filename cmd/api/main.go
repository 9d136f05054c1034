package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/account-service/internal/api/http"
	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/auth"
	"github.com/spec-kit/account-service/internal/config"
	"github.com/spec-kit/account-service/internal/events"
	"github.com/spec-kit/account-service/internal/observability"
	"github.com/spec-kit/account-service/internal/persistence"
	"github.com/spec-kit/account-service/internal/ratelimit"
	"github.com/spec-kit/account-service/internal/repository"
	"github.com/spec-kit/account-service/internal/service"
	"github.com/spec-kit/account-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.OpenStore(ctx, *cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err), zap.String("driver", string(cfg.Storage.Driver)))
	}
	defer store.Close()

	if cfg.Storage.RunMigrations {
		if err := persistence.RunMigrations(ctx, store.SQLDB(), store.Dialect(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var userRepo repository.UserRepository
	switch {
	case store.Postgres != nil:
		userRepo = repository.NewUserRepository(store.Postgres.PoolHandle())
	default:
		userRepo = repository.NewSQLiteUserRepository(store.SQLite.DB)
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger, metrics))

	userService := service.NewUserService(service.UserDependencies{
		UserRepo:   userRepo,
		Hasher:     auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	deps := []handlers.Dependency{{Name: string(cfg.Storage.Driver), Pinger: store}}
	var registerLimiter fiber.Handler
	if redis != nil {
		deps = append(deps, handlers.Dependency{Name: "redis", Pinger: redis})
		if cfg.RateLimit.RegisterPerMinute > 0 {
			limiter := ratelimit.NewRedisLimiter(redis.Client, cfg.RateLimit.RegisterPerMinute, time.Minute)
			registerLimiter = ratelimit.Middleware(limiter, "register", logger)
		}
	} else if cfg.RateLimit.RegisterPerMinute > 0 {
		logger.Warn("RATE_LIMIT_REGISTER_PER_MINUTE set but redis disabled; registration is not rate limited")
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps...),
		Users:           handlers.NewUsersHandler(userService),
		Metrics:         metrics,
		RegisterLimiter: registerLimiter,
	})

	go func() {
		logger.Info("http server listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("env", cfg.App.Env),
			zap.String("storage", string(cfg.Storage.Driver)),
		)
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
