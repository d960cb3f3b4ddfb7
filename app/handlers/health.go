// Package handlers holds the HTTP handlers of the assistant.
package handlers

import (
	"context"
	"net/http"

	"github.com/km-arc/go-assistant/framework/health"
	gohttp "github.com/km-arc/go-assistant/framework/http"
)

// HealthReporter is the part of the bootstrap factory the health endpoints
// read.
type HealthReporter interface {
	HealthCheck(ctx context.Context) health.Summary
	LastHealth() health.Summary
	Disabled() map[string]string
}

// summary probes every service, or returns the last pass for ?cached=true
// when one exists.
func summary(reporter HealthReporter, req *gohttp.Request) health.Summary {
	if req.Query("cached", "false") == "true" {
		if last := reporter.LastHealth(); last != nil {
			return last
		}
	}
	return reporter.HealthCheck(req.Raw().Context())
}

// Health serves GET /health: a probe of every enabled service plus the
// services disabled at boot. Any failing probe turns the status to 503.
func Health(reporter HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := summary(reporter, gohttp.NewRequest(r))
		status := http.StatusOK
		if !s.Healthy() {
			status = http.StatusServiceUnavailable
		}
		services := s
		if services == nil {
			services = health.Summary{}
		}
		gohttp.NewResponse(w).JSON(status, map[string]any{
			"healthy":  s.Healthy(),
			"services": services,
			"disabled": reporter.Disabled(),
		})
	}
}

// HealthService serves GET /health/{service} for one service. A disabled
// service answers 503 with the reason; an unknown one 404.
func HealthService(reporter HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := gohttp.NewRequest(r)
		res := gohttp.NewResponse(w)
		name := req.RouteParam("service")

		if reason, ok := reporter.Disabled()[name]; ok {
			res.JSON(http.StatusServiceUnavailable, map[string]any{
				"message": "feature disabled",
				"service": name,
				"reason":  reason,
			})
			return
		}
		st, ok := summary(reporter, req)[name]
		if !ok {
			res.NotFound("Unknown service.")
			return
		}
		if !st.Healthy {
			res.JSON(http.StatusServiceUnavailable, map[string]any{"data": st})
			return
		}
		res.Success(st)
	}
}
