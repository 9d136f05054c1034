package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/account-service/internal/api/http/handlers"
	"github.com/spec-kit/account-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Users   *handlers.UsersHandler
	Metrics *observability.Metrics
	// RegisterLimiter guards registration when set.
	RegisterLimiter fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	api := app.Group("/api")
	api.Get("/health", cfg.Health.Live)
	api.Get("/health/ready", cfg.Health.Ready)

	register := []fiber.Handler{cfg.Users.Register}
	if cfg.RegisterLimiter != nil {
		register = append([]fiber.Handler{cfg.RegisterLimiter}, register...)
	}

	users := api.Group("/users")
	users.Post("/register", register...)
	users.Get("", cfg.Users.List)
	users.Get("/:id", cfg.Users.Get)
	users.Delete("/:id", cfg.Users.Delete)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}
}
