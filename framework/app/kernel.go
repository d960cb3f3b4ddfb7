// Package app ties the bootstrap factory, the router and the HTTP server
// together. The same Application serves locally and behind API Gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/framework/bootstrap"
	"github.com/km-arc/go-assistant/framework/config"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/providers"
	"github.com/km-arc/go-assistant/routing"
)

// RouteFunc registers application routes once the container is ready.
type RouteFunc func(r *routing.Router, f *bootstrap.Factory) error

// Option configures an Application.
type Option func(*Application)

// WithProviders adds business providers after the framework's
// infrastructure providers.
func WithProviders(ps ...bootstrap.ServiceProvider) Option {
	return func(a *Application) { a.providers = append(a.providers, ps...) }
}

// WithRoutes adds a route registration step.
func WithRoutes(fn RouteFunc) Option {
	return func(a *Application) { a.routes = append(a.routes, fn) }
}

// WithBootstrapOptions passes options through to the bootstrap factory.
func WithBootstrapOptions(opts ...bootstrap.Option) Option {
	return func(a *Application) { a.factoryOpts = append(a.factoryOpts, opts...) }
}

// WithShutdownTimeout bounds graceful shutdown in Run. Default 10s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *Application) { a.shutdownTimeout = d }
}

// Application is the top-level application.
type Application struct {
	*bootstrap.Factory

	providers       []bootstrap.ServiceProvider
	routes          []RouteFunc
	factoryOpts     []bootstrap.Option
	shutdownTimeout time.Duration

	bootOnce sync.Once
	bootErr  error
	router   *routing.Router
}

// New creates an application over cfg. Nothing is constructed until Boot.
//
//	application := app.New(cfg,
//	    app.WithProviders(appproviders.All()...),
//	    app.WithRoutes(assistant.Routes),
//	)
func New(cfg *config.Config, opts ...Option) *Application {
	a := &Application{shutdownTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	factoryOpts := append([]bootstrap.Option{
		bootstrap.WithProviders(providers.Infrastructure()...),
		bootstrap.WithProviders(a.providers...),
	}, a.factoryOpts...)
	a.Factory = bootstrap.New(cfg, container.NewRegistry(), factoryOpts...)
	return a
}

// Boot initializes the container and registers the routes. It runs once;
// later calls return the first result.
func (a *Application) Boot(ctx context.Context) error {
	a.bootOnce.Do(func() {
		a.bootErr = a.boot(ctx)
	})
	return a.bootErr
}

func (a *Application) boot(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		return err
	}
	r, err := container.Resolve[*routing.Router](a.Factory, routing.Token)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	for _, fn := range a.routes {
		if err := fn(r, a.Factory); err != nil {
			return fmt.Errorf("app: routes: %w", err)
		}
	}
	a.router = r
	return nil
}

// Router returns the application router, or nil before Boot.
func (a *Application) Router() *routing.Router { return a.router }

// Run boots the application and serves HTTP on APP_PORT until ctx is
// cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Boot(ctx); err != nil {
		return err
	}
	cfg := a.Config()
	ln, err := net.Listen("tcp", ":"+cfg.App.Port)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is cancelled.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.Boot(ctx); err != nil {
		return err
	}
	logger := a.Logger()
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("env", a.Config().App.Env))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: shutdown: %w", err)
	}
	_ = logger.Sync()
	return nil
}
