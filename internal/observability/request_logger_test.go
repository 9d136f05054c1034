package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerKeepsMethodAcrossRequests(t *testing.T) {
	m := NewMetrics()
	core, logs := observer.New(zap.InfoLevel)

	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), m))
	app.Post("/api/users/register", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusCreated) })
	app.Get("/api/users", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, req := range []struct{ method, path string }{
		{fiber.MethodPost, "/api/users/register"},
		{fiber.MethodGet, "/api/users"},
	} {
		resp, err := app.Test(httptest.NewRequest(req.method, req.path, nil), -1)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/api/users/register", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/users", "200")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.requests))

	entries := logs.FilterMessage("request completed").AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "POST", entries[0].ContextMap()["method"])
	assert.Equal(t, "/api/users/register", entries[0].ContextMap()["path"])
}
