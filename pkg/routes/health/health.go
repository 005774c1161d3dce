package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

const checkTimeout = 2 * time.Second

// PingFunc reports whether a dependency is reachable
type PingFunc func(ctx context.Context) error

type check struct {
	name     string
	ping     PingFunc
	optional bool
}

// Checker serves the health endpoints
type Checker struct {
	checks    []check
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewChecker creates a health checker with no dependency checks
func NewChecker(version string) *Checker {
	return &Checker{
		version:   version,
		startTime: time.Now(),
	}
}

// AddCheck registers a dependency. A failing required check makes the service unhealthy;
// a failing optional one only degrades it.
func (c *Checker) AddCheck(name string, ping PingFunc, optional bool) *Checker {
	c.checks = append(c.checks, check{name: name, ping: ping, optional: optional})
	return c
}

// SetReady sets the readiness state
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// RegisterRoutes registers health check endpoints
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// Health runs every registered check
func (c *Checker) Health(ctx echo.Context) error {
	status := &HealthStatus{
		Status:     statusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     make(map[string]*CheckResult, len(c.checks)),
		ReportedAt: time.Now().UTC(),
	}

	for _, chk := range c.checks {
		pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), checkTimeout)
		start := time.Now()
		err := chk.ping(pingCtx)
		latency := time.Since(start)
		cancel()

		if err == nil {
			status.Checks[chk.name] = &CheckResult{Status: statusHealthy, Latency: latency.String()}
			continue
		}

		if chk.optional {
			status.Checks[chk.name] = &CheckResult{Status: statusDegraded, Message: err.Error()}
			if status.Status == statusHealthy {
				status.Status = statusDegraded
			}
			continue
		}
		status.Checks[chk.name] = &CheckResult{Status: statusUnhealthy, Message: err.Error()}
		status.Status = statusUnhealthy
	}

	httpStatus := http.StatusOK
	if status.Status == statusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return ctx.JSON(httpStatus, status)
}

// Live returns the liveness status (is the service running)
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready returns the readiness status (is the service ready to accept traffic)
func (c *Checker) Ready(ctx echo.Context) error {
	if c.ready.Load() {
		return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
	}
	return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}
