package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"depot-backend/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByRoute(t *testing.T) {
	m := metrics.New()
	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/api/items/:id", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/api/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })
	app.Get("/metrics", m.Handler())

	for _, path := range []string{"/api/items/1", "/api/items/2", "/api/missing"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `depot_http_requests_total{code="200",method="GET",route="/api/items/:id"} 2`)
	assert.Contains(t, string(body), `depot_http_requests_total{code="404",method="GET",route="/api/missing"} 1`)
}

func TestBridgeCounters(t *testing.T) {
	m := metrics.New()
	m.ObserveReading(metrics.ReadingStored)
	m.ObserveReading(metrics.ReadingStored)
	m.ObserveReading(metrics.ReadingUnknownScale)
	m.CountRelayed()

	n, err := testutil.GatherAndCount(m.Registry(), "depot_scale_readings_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var nilMetrics *metrics.Metrics
	assert.NotPanics(t, func() {
		nilMetrics.ObserveReading(metrics.ReadingStored)
		nilMetrics.CountRelayed()
		nilMetrics.ObserveStatus("online")
	})
}
