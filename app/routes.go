// Package app wires the assistant's HTTP surface onto the router.
package app

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/app/handlers"
	"github.com/km-arc/go-assistant/framework/bootstrap"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/events"
	"github.com/km-arc/go-assistant/framework/exceptions"
	gohttp "github.com/km-arc/go-assistant/framework/http"
	"github.com/km-arc/go-assistant/framework/logging"
	"github.com/km-arc/go-assistant/framework/metrics"
	"github.com/km-arc/go-assistant/routing"
)

// Routes registers the endpoints:
//
//	GET  /health             probe summary and disabled services
//	GET  /health/{service}   one service
//	GET  /metrics            Prometheus exposition
//	POST /webhooks/messages  Z-API inbound callbacks (JSON, token required)
func Routes(r *routing.Router, f *bootstrap.Factory) error {
	bus, err := container.Resolve[*events.Bus](f, events.Token)
	if err != nil {
		return err
	}
	exc, err := container.Resolve[*exceptions.Handler](f, exceptions.Token)
	if err != nil {
		return err
	}
	logger, err := container.Resolve[*zap.Logger](f, logging.Token)
	if err != nil {
		return err
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		gohttp.NewResponse(w).NotFound()
	})
	r.Get("/health", handlers.Health(f))
	r.Get("/health/{service}", handlers.HealthService(f))
	if m, err := container.Resolve[*metrics.Collector](f, metrics.Token); err == nil {
		r.Get("/metrics", m.Handler().ServeHTTP)
	}
	webhook := handlers.NewWebhook(bus, exc, f.Config().Messaging.Token(), logger.Named("webhook"))
	r.Prefix("/webhooks", func(r *routing.Router) {
		r.Group(func(r *routing.Router) {
			r.Middleware(middleware.AllowContentType("application/json"))
			r.Post("/messages", webhook.ServeHTTP)
		})
	})
	return nil
}
