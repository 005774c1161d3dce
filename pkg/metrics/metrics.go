// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ramsey-B/clover/pkg/linking"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/session"
)

var (
	// StrategyRunsTotal counts strategy runs by outcome (ok, timeout, error)
	StrategyRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "strategy_runs_total",
			Help:      "Total number of match strategy runs by outcome",
		},
		[]string{"kind", "strategy", "outcome"},
	)

	StrategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "strategy_duration_seconds",
			Help:      "Duration of match strategy runs in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 3},
		},
		[]string{"kind", "strategy"},
	)

	StrategyCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "strategy_candidates",
			Help:      "Number of candidates returned by a strategy run",
			Buckets:   []float64{0, 1, 2, 3, 5, 10, 25},
		},
		[]string{"kind", "strategy"},
	)

	IdentifiersLinkedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "linking",
			Name:      "identifiers_linked_total",
			Help:      "Total number of identifiers attached to entities",
		},
		[]string{"type"},
	)

	EntitiesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "linking",
			Name:      "entities_created_total",
			Help:      "Total number of entities created from facts",
		},
		[]string{"kind"},
	)

	MergedFactsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "linking",
			Name:      "merged_facts_total",
			Help:      "Total number of facts linked by duplicate contact merges",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
)

// Recorder feeds session and executor outcomes into the metrics above
type Recorder struct{}

var (
	_ session.Observer = Recorder{}
	_ linking.Listener = Recorder{}
)

func (Recorder) ObserveStrategy(kind models.EntityKind, strategy string, duration time.Duration, candidates int, err error) {
	outcome := "ok"
	var timeout *models.StrategyTimeoutError
	switch {
	case errors.As(err, &timeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}

	StrategyRunsTotal.WithLabelValues(string(kind), strategy, outcome).Inc()
	StrategyDuration.WithLabelValues(string(kind), strategy).Observe(duration.Seconds())
	StrategyCandidates.WithLabelValues(string(kind), strategy).Observe(float64(candidates))
}

func (Recorder) IdentifierLinked(_ context.Context, _ string, identifier models.Identifier) error {
	IdentifiersLinkedTotal.WithLabelValues(string(identifier.Type)).Inc()
	return nil
}

func (Recorder) EntityCreated(_ context.Context, entity models.Entity) error {
	EntitiesCreatedTotal.WithLabelValues(string(entity.Kind)).Inc()
	return nil
}

func (Recorder) ContactMerged(_ context.Context, _, _ string, linked []models.Fact) error {
	MergedFactsTotal.Add(float64(len(linked)))
	return nil
}

// Middleware records request counts and durations by route template
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
