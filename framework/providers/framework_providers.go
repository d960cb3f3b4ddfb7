// Package providers holds the infrastructure service providers every
// deployment needs. A failure in any of them aborts bootstrap.
package providers

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/framework/bootstrap"
	"github.com/km-arc/go-assistant/framework/config"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/events"
	"github.com/km-arc/go-assistant/framework/exceptions"
	"github.com/km-arc/go-assistant/framework/logging"
	"github.com/km-arc/go-assistant/framework/metrics"
	"github.com/km-arc/go-assistant/routing"
)

// Infrastructure returns the framework providers in registration order.
func Infrastructure() []bootstrap.ServiceProvider {
	return []bootstrap.ServiceProvider{
		&LogServiceProvider{},
		&ExceptionServiceProvider{},
		&EventServiceProvider{},
		&MetricsServiceProvider{},
		&RoutingServiceProvider{},
	}
}

// declare records the descriptor for token and registers it.
func declare(c *container.Container, token container.Token, opts ...container.Option) error {
	c.Registry().Declare(token, opts...)
	return c.RegisterClass(token)
}

// ── LogServiceProvider ────────────────────────────────────────────────────────

// LogServiceProvider builds the shared zap logger from APP_ENV and LOG_LEVEL.
//
// Bound tokens:
//   - logging.Token → *zap.Logger
type LogServiceProvider struct{ bootstrap.InfrastructureProvider }

func (p *LogServiceProvider) Name() string                { return "log" }
func (p *LogServiceProvider) Provides() []container.Token { return []container.Token{logging.Token} }

func (p *LogServiceProvider) Register(c *container.Container) error {
	return declare(c, logging.Token,
		container.Needs(config.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			cfg := container.Dep[*config.Config](deps, 0)
			return logging.New(logging.Config{
				Level:       cfg.App.LogLevel,
				Development: cfg.App.Env == "local",
				Name:        cfg.App.Name,
			})
		}),
	)
}

// ── ExceptionServiceProvider ──────────────────────────────────────────────────

// ExceptionServiceProvider registers the error reporter and renderer.
//
// Bound tokens:
//   - exceptions.Token → *exceptions.Handler
type ExceptionServiceProvider struct{ bootstrap.InfrastructureProvider }

func (p *ExceptionServiceProvider) Name() string { return "exceptions" }
func (p *ExceptionServiceProvider) Provides() []container.Token {
	return []container.Token{exceptions.Token}
}

func (p *ExceptionServiceProvider) Register(c *container.Container) error {
	return declare(c, exceptions.Token,
		container.Needs(logging.Token, config.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			logger := container.Dep[*zap.Logger](deps, 0)
			cfg := container.Dep[*config.Config](deps, 1)
			return exceptions.NewHandler(logger.Named("exceptions"), cfg.App.Debug), nil
		}),
	)
}

// ── EventServiceProvider ──────────────────────────────────────────────────────

// EventServiceProvider registers the in-process event bus.
//
// Bound tokens:
//   - events.Token → *events.Bus
type EventServiceProvider struct{ bootstrap.InfrastructureProvider }

func (p *EventServiceProvider) Name() string                { return "events" }
func (p *EventServiceProvider) Provides() []container.Token { return []container.Token{events.Token} }

func (p *EventServiceProvider) Register(c *container.Container) error {
	return declare(c, events.Token,
		container.Needs(logging.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			return events.NewBus(container.Dep[*zap.Logger](deps, 0).Named("events")), nil
		}),
	)
}

// ── MetricsServiceProvider ────────────────────────────────────────────────────

// MetricsServiceProvider registers the prometheus collector, namespaced by
// APP_NAME.
//
// Bound tokens:
//   - metrics.Token → *metrics.Collector
type MetricsServiceProvider struct{ bootstrap.InfrastructureProvider }

func (p *MetricsServiceProvider) Name() string                { return "metrics" }
func (p *MetricsServiceProvider) Provides() []container.Token { return []container.Token{metrics.Token} }

var invalidMetricChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func (p *MetricsServiceProvider) Register(c *container.Container) error {
	return declare(c, metrics.Token,
		container.Needs(config.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			cfg := container.Dep[*config.Config](deps, 0)
			return metrics.NewCollector(invalidMetricChars.ReplaceAllString(cfg.App.Name, "_")), nil
		}),
	)
}

// ── RoutingServiceProvider ────────────────────────────────────────────────────

// RoutingServiceProvider registers the HTTP router with access logging and,
// when a collector is registered, request metrics.
//
// Bound tokens:
//   - routing.Token → *routing.Router
type RoutingServiceProvider struct{ bootstrap.InfrastructureProvider }

func (p *RoutingServiceProvider) Name() string                { return "router" }
func (p *RoutingServiceProvider) Provides() []container.Token { return []container.Token{routing.Token} }

func (p *RoutingServiceProvider) Register(c *container.Container) error {
	return declare(c, routing.Token,
		container.DependsOn(container.Arg(logging.Token), container.OptionalArg(metrics.Token)),
		container.WithFactory(func(deps ...any) (any, error) {
			router := routing.New(container.Dep[*zap.Logger](deps, 0).Named("http"))
			if m := container.Dep[*metrics.Collector](deps, 1); m != nil {
				router.Middleware(m.Middleware)
			}
			return router, nil
		}),
	)
}
