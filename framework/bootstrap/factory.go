// Package bootstrap builds the application container from configuration.
//
// Infrastructure providers (logging, error handling, events, metrics,
// routing) must come up or Initialize fails. Business providers are
// enabled only when their required settings are present, and a business
// provider that fails to construct is logged, unregistered and reported as
// disabled so the application still reaches Ready with a degraded set.
//
//	f := bootstrap.New(cfg, container.NewRegistry(),
//	    bootstrap.WithProviders(providers.Infrastructure()...),
//	    bootstrap.WithProviders(appproviders.All()...),
//	)
//	if err := f.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	gh, err := container.Resolve[*github.Client](f, github.Token)
//	if container.IsNotFound(err) {
//	    // feature disabled
//	}
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/framework/config"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/health"
	"github.com/km-arc/go-assistant/framework/logging"
	"github.com/km-arc/go-assistant/framework/metrics"
	"github.com/km-arc/go-assistant/framework/validation"
)

// ErrAlreadyInitialized is returned by Initialize outside Uninitialized.
var ErrAlreadyInitialized = errors.New("bootstrap: factory already initialized")

// Option configures a Factory.
type Option func(*Factory)

// WithProviders appends providers. Order is kept within each tier.
func WithProviders(ps ...ServiceProvider) Option {
	return func(f *Factory) { f.providers = append(f.providers, ps...) }
}

// WithLogger sets the bootstrap logger. Without it the factory uses the
// logger registered under logging.Token by an infrastructure provider.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// WithHealthTimeout overrides the per-probe timeout from configuration.
func WithHealthTimeout(d time.Duration) Option {
	return func(f *Factory) { f.healthTimeout = d }
}

// WithHealthCheckOnBoot overrides whether Initialize runs a health pass.
func WithHealthCheckOnBoot(on bool) Option {
	return func(f *Factory) { f.healthOnBoot = &on }
}

// Factory owns the container and drives its lifecycle.
type Factory struct {
	cfg       *config.Config
	container *container.Container
	providers []ServiceProvider

	logger        *zap.Logger
	healthTimeout time.Duration
	healthOnBoot  *bool

	mu         sync.RWMutex
	state      State
	appLogger  *zap.Logger
	metrics    *metrics.Collector
	disabled   map[string]string
	checkers   map[string]health.Checker
	lastHealth health.Summary
}

// New creates an uninitialized Factory over registry.
func New(cfg *config.Config, registry *container.Registry, opts ...Option) *Factory {
	f := &Factory{
		cfg:       cfg,
		container: container.New(registry),
		disabled:  make(map[string]string),
		checkers:  make(map[string]health.Checker),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.healthTimeout == 0 {
		f.healthTimeout = cfg.Health.Timeout
	}
	f.container.AfterResolving(func(token container.Token, _ any) {
		f.mu.RLock()
		m := f.metrics
		f.mu.RUnlock()
		if m != nil {
			m.Resolutions.WithLabelValues(token.String()).Inc()
		}
	})
	return f
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

// Initialize registers every provider and moves the factory to Ready.
// It is valid only from Uninitialized; an infrastructure failure clears the
// container and leaves the factory Uninitialized so it can be retried.
func (f *Factory) Initialize(ctx context.Context) error {
	f.mu.Lock()
	if f.state != StateUninitialized {
		f.mu.Unlock()
		return ErrAlreadyInitialized
	}
	f.state = StateInitializing
	f.mu.Unlock()

	if err := f.initialize(ctx); err != nil {
		f.Clear()
		return err
	}

	f.mu.Lock()
	f.state = StateReady
	f.mu.Unlock()
	f.currentLogger().Info("bootstrap complete",
		zap.Int("services", len(f.container.RegisteredServices())),
		zap.Int("disabled", len(f.Disabled())))
	return nil
}

func (f *Factory) initialize(ctx context.Context) error {
	snapshot := f.cfg.Snapshot()
	if err := f.container.Register(config.Token, container.Value(f.cfg)); err != nil {
		return err
	}
	if err := f.container.Register(config.SnapshotToken, container.Value(snapshot)); err != nil {
		return err
	}

	var infra, business []ServiceProvider
	for _, p := range f.providers {
		if p.Tier() == TierInfrastructure {
			infra = append(infra, p)
		} else {
			business = append(business, p)
		}
	}

	for _, p := range infra {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		if err := f.bring(p); err != nil {
			return fmt.Errorf("bootstrap %s: %w", p.Name(), err)
		}
	}
	f.adoptInfrastructure()
	for _, p := range infra {
		if err := p.Boot(f.container); err != nil {
			return fmt.Errorf("bootstrap %s: boot: %w", p.Name(), err)
		}
		f.record(p, "enabled")
	}

	var enabled []ServiceProvider
	for _, p := range business {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		if missing := unmet(snapshot, p.Requires()); missing != "" {
			f.disable(p, "missing configuration: "+missing)
			f.record(p, "disabled")
			f.currentLogger().Info("service disabled",
				zap.String("service", p.Name()),
				zap.String("missing", missing))
			continue
		}
		if err := f.bring(p); err != nil {
			f.fail(p, err)
			continue
		}
		enabled = append(enabled, p)
	}
	for _, p := range enabled {
		if err := p.Boot(f.container); err != nil {
			f.fail(p, fmt.Errorf("boot: %w", err))
			continue
		}
		f.record(p, "enabled")
	}

	if f.runHealthOnBoot() {
		summary := f.HealthCheck(ctx)
		if !summary.Healthy() {
			f.currentLogger().Warn("health check failed on boot", zap.Strings("failing", summary.Failing()))
		}
	}
	return nil
}

// bring registers p and eagerly resolves what it provides, collecting
// health probes from the built instances.
func (f *Factory) bring(p ServiceProvider) error {
	if err := p.Register(f.container); err != nil {
		return err
	}
	tokens := p.Provides()
	found := make(map[container.Token]health.Checker)
	for _, token := range tokens {
		inst, err := f.container.Resolve(token)
		if err != nil {
			return err
		}
		if hc, ok := inst.(health.Checker); ok {
			found[token] = hc
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for token, hc := range found {
		name := p.Name()
		if len(found) > 1 {
			name += "." + token.String()
		}
		f.checkers[name] = hc
	}
	return nil
}

// fail downgrades a business provider failure to a disabled service.
func (f *Factory) fail(p ServiceProvider, err error) {
	for _, token := range p.Provides() {
		f.container.Unregister(token)
	}
	f.mu.Lock()
	for name := range f.checkers {
		if name == p.Name() || strings.HasPrefix(name, p.Name()+".") {
			delete(f.checkers, name)
		}
	}
	f.mu.Unlock()

	f.currentLogger().Warn("service failed to start; continuing without it",
		zap.String("service", p.Name()),
		zap.Error(err))
	f.disable(p, err.Error())
	f.record(p, "failed")
}

func (f *Factory) disable(p ServiceProvider, reason string) {
	f.mu.Lock()
	f.disabled[p.Name()] = reason
	f.mu.Unlock()
}

func (f *Factory) record(p ServiceProvider, status string) {
	f.mu.RLock()
	m := f.metrics
	f.mu.RUnlock()
	if m != nil {
		m.RecordBootstrap(string(p.Tier()), status)
	}
}

// adoptInfrastructure picks up the logger and metrics collector the
// infrastructure tier registered.
func (f *Factory) adoptInfrastructure() {
	var l *zap.Logger
	if resolved, err := container.Resolve[*zap.Logger](f.container, logging.Token); err == nil {
		l = resolved
	}
	var m *metrics.Collector
	if c, err := container.Resolve[*metrics.Collector](f.container, metrics.Token); err == nil {
		m = c
	}

	f.mu.Lock()
	f.appLogger = l
	f.metrics = m
	f.mu.Unlock()
}

func (f *Factory) runHealthOnBoot() bool {
	if f.healthOnBoot != nil {
		return *f.healthOnBoot
	}
	return f.cfg.Health.OnBoot
}

// currentLogger prefers the explicit option, then the container logger.
func (f *Factory) currentLogger() *zap.Logger {
	if f.logger != nil {
		return f.logger
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.appLogger != nil {
		return f.appLogger
	}
	return zap.NewNop()
}

// unmet returns the comma-separated settings failing rules, or "".
func unmet(snapshot config.Snapshot, rules validation.Rules) string {
	if len(rules) == 0 {
		return ""
	}
	v := validation.Make(snapshot, rules)
	if v.Passes() {
		return ""
	}
	return strings.Join(v.Errors().Fields(), ", ")
}

// Clear empties the container and returns the factory to Uninitialized.
// It is idempotent.
func (f *Factory) Clear() {
	f.container.Clear()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateUninitialized
	f.appLogger = nil
	f.metrics = nil
	f.disabled = make(map[string]string)
	f.checkers = make(map[string]health.Checker)
	f.lastHealth = nil
}

// ── Accessors ─────────────────────────────────────────────────────────────────

// State returns the lifecycle state.
func (f *Factory) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Container returns the underlying container.
func (f *Factory) Container() *container.Container { return f.container }

// Config returns the configuration the factory was built with.
func (f *Factory) Config() *config.Config { return f.cfg }

// Logger returns the bootstrap logger (a no-op logger before Initialize).
func (f *Factory) Logger() *zap.Logger { return f.currentLogger() }

// Disabled maps each disabled business service to the reason.
func (f *Factory) Disabled() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.disabled)
}

// Resolve delegates to the container.
func (f *Factory) Resolve(token container.Token) (any, error) {
	return f.container.Resolve(token)
}

// Register adds or overrides a registration after bootstrap, typically a
// test double. A pre-built value exposing a health probe joins the health
// pass under the token name.
func (f *Factory) Register(token container.Token, provider container.Provider) error {
	if err := f.container.Register(token, provider); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.checkers, token.String())
	if inst, ok := f.container.Instances()[token]; ok {
		if hc, ok := inst.(health.Checker); ok {
			f.checkers[token.String()] = hc
		}
	}
	return nil
}

// ── Health ────────────────────────────────────────────────────────────────────

// HealthCheck probes every collected service concurrently, each under the
// configured timeout. It never fails; unhealthy services are reported in
// the summary.
func (f *Factory) HealthCheck(ctx context.Context) health.Summary {
	f.mu.RLock()
	probes := maps.Clone(f.checkers)
	m := f.metrics
	f.mu.RUnlock()

	summary := health.Run(ctx, probes, f.healthTimeout)
	if m != nil {
		m.RecordHealth(summary)
	}

	f.mu.Lock()
	f.lastHealth = summary
	f.mu.Unlock()
	return summary
}

// LastHealth returns the most recent health summary, or nil before the
// first pass.
func (f *Factory) LastHealth() health.Summary {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.lastHealth)
}
