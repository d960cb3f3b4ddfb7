// Package metrics exposes the runtime's prometheus collectors: container
// resolutions, bootstrap outcomes, probe results and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/health"
)

// Token is the container token of the *Collector.
var Token = container.TypeOf[*Collector]()

// Collector owns a private registry so several instances (one per test,
// one per bootstrap) never collide on registration.
type Collector struct {
	registry *prometheus.Registry

	Resolutions  *prometheus.CounterVec
	Bootstrap    *prometheus.CounterVec
	HealthStatus *prometheus.GaugeVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates the collectors under namespace and registers them,
// together with the Go runtime collectors, on a fresh registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Service constructions performed by the container",
			},
			[]string{"token"},
		),
		Bootstrap: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bootstrap_services",
				Help:      "Service providers processed at bootstrap by tier and outcome",
			},
			[]string{"tier", "status"},
		),
		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "health_status",
				Help:      "Last probe result per service (1 healthy, 0 unhealthy)",
			},
			[]string{"service"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		c.Resolutions,
		c.Bootstrap,
		c.HealthStatus,
		c.HTTPRequests,
		c.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Instrument counts every construction ct performs.
func (c *Collector) Instrument(ct *container.Container) {
	ct.AfterResolving(func(token container.Token, _ any) {
		c.Resolutions.WithLabelValues(token.String()).Inc()
	})
}

// RecordBootstrap counts one provider outcome ("enabled", "disabled", "failed").
func (c *Collector) RecordBootstrap(tier, status string) {
	c.Bootstrap.WithLabelValues(tier, status).Inc()
}

// RecordHealth sets the gauge for every service in s.
func (c *Collector) RecordHealth(s health.Summary) {
	for name, st := range s {
		v := 0.0
		if st.Healthy {
			v = 1
		}
		c.HealthStatus.WithLabelValues(name).Set(v)
	}
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters do not explode cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
