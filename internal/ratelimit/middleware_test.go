package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/spec-kit/account-service/pkg/util/errorutil"
)

type stubLimiter struct {
	decision Decision
	err      error
	keys     []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (Decision, error) {
	s.keys = append(s.keys, key)
	return s.decision, s.err
}

func newTestApp(handler fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{"code": de.Code}})
		},
	})
	app.Post("/register", handler, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	return app
}

func TestMiddlewareAllows(t *testing.T) {
	limiter := &stubLimiter{decision: Decision{Allowed: true, Count: 1, Limit: 3}}
	app := newTestApp(Middleware(limiter, "register", nil))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/register", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "3", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Remaining"))
	require.Len(t, limiter.keys, 1)
	assert.Contains(t, limiter.keys[0], "register:")
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	limiter := &stubLimiter{decision: Decision{Allowed: false, Count: 4, Limit: 3, ResetAt: time.Now().Add(30 * time.Second)}}
	app := newTestApp(Middleware(limiter, "register", nil))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/register", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestMiddlewareFailsOpen(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	limiter := &stubLimiter{decision: Decision{Allowed: true}, err: errors.New("connection refused")}
	app := newTestApp(Middleware(limiter, "register", zap.New(core)))

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/register", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, logs.FilterMessage("rate limiter unavailable; allowing request").Len())
}
