package middleware

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveWebSockets is the gauge of currently open websocket connections.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "momoland_active_websockets",
		Help: "Number of currently active WebSocket connections",
	})

	// RedisErrors counts Redis command errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momoland_redis_errors_total",
		Help: "Total number of Redis command errors",
	}, []string{"command"})

	// StorySweepRuns counts cleanup sweep executions by outcome.
	StorySweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "momoland_story_sweep_runs_total",
		Help: "Total number of story cleanup sweeps by outcome",
	}, []string{"outcome"})

	// StoriesDeactivated counts stories retired by the cleanup sweep.
	StoriesDeactivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "momoland_stories_deactivated_total",
		Help: "Total number of stories deactivated by the cleanup sweep",
	})
)

// InitMetrics creates the fiberprometheus middleware for the given service name.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}

// MetricsMiddleware returns the request-level Prometheus middleware.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return prom.Middleware
}
