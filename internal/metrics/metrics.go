// Package metrics holds the Prometheus collectors for the HTTP API and the scale bridge.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reading outcomes recorded by the bridge.
const (
	ReadingStored       = "stored"
	ReadingUnknownScale = "unknown_scale"
	ReadingInvalid      = "invalid"
	ReadingFailed       = "failed"
	ReadingDropped      = "dropped"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	readings        *prometheus.CounterVec
	relayed         prometheus.Counter
	statusChanges   *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "depot_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "depot_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	readings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "depot_scale_readings_total",
		Help: "Scale weight messages by outcome.",
	}, []string{"result"})
	relayed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "depot_scale_counts_relayed_total",
		Help: "Bottle counts published back to scales.",
	})
	status := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "depot_scale_status_total",
		Help: "Scale status messages by reported state.",
	}, []string{"state"})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requests, duration, readings, relayed, status,
	)
	return &Metrics{
		registry:        registry,
		requestsTotal:   requests,
		requestDuration: duration,
		readings:        readings,
		relayed:         relayed,
		statusChanges:   status,
	}
}

// Middleware records count and latency per matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		code := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			code = fe.Code
		} else if err != nil {
			code = fiber.StatusInternalServerError
		}
		route := c.Route().Path
		m.requestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(code)).Inc()
		m.requestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	if m == nil {
		return func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusServiceUnavailable, "metrics disabled")
		}
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

func (m *Metrics) ObserveReading(result string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(result).Inc()
}

func (m *Metrics) CountRelayed() {
	if m == nil {
		return
	}
	m.relayed.Inc()
}

func (m *Metrics) ObserveStatus(state string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(state).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
