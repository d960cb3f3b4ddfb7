package bootstrap_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/km-arc/go-assistant/framework/bootstrap"
	"github.com/km-arc/go-assistant/framework/config"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/health"
	"github.com/km-arc/go-assistant/framework/logging"
	"github.com/km-arc/go-assistant/framework/metrics"
	"github.com/km-arc/go-assistant/framework/validation"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type stubProvider struct {
	bootstrap.BaseProvider
	name  string
	tier  bootstrap.Tier
	rules validation.Rules
	token container.Token
	build func() (any, error)
	boot  func(c *container.Container) error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Tier() bootstrap.Tier {
	if p.tier == "" {
		return bootstrap.TierBusiness
	}
	return p.tier
}

func (p *stubProvider) Requires() validation.Rules  { return p.rules }
func (p *stubProvider) Provides() []container.Token { return []container.Token{p.token} }

func (p *stubProvider) Register(c *container.Container) error {
	return c.Register(p.token, container.FactoryFunc(p.build))
}

func (p *stubProvider) Boot(c *container.Container) error {
	if p.boot == nil {
		return nil
	}
	return p.boot(c)
}

type probe struct{ err error }

func (p *probe) HealthCheck(context.Context) error { return p.err }

type slowProbe struct{}

func (slowProbe) HealthCheck(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func testConfig(githubToken string) *config.Config {
	return &config.Config{
		App:    config.AppConfig{Name: "assistant", Env: "testing", LogLevel: "info"},
		Health: config.HealthConfig{Timeout: time.Second},
		GitHub: config.GitHubConfig{Token: githubToken},
	}
}

func loggerProvider() *stubProvider {
	return &stubProvider{
		name:  "log",
		tier:  bootstrap.TierInfrastructure,
		token: logging.Token,
		build: func() (any, error) { return zap.NewNop(), nil },
	}
}

func githubProvider(build func() (any, error)) *stubProvider {
	return &stubProvider{
		name:  "github",
		rules: validation.Rules{"GITHUB_TOKEN": "required"},
		token: "github",
		build: build,
	}
}

func okBuild() (any, error) { return &probe{}, nil }

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func TestFactory_MissingCredentialStillReachesReady(t *testing.T) {
	f := bootstrap.New(testConfig(""), container.NewRegistry(),
		bootstrap.WithProviders(loggerProvider(), githubProvider(okBuild)))

	require.NoError(t, f.Initialize(context.Background()))

	assert.Equal(t, bootstrap.StateReady, f.State())
	_, err := f.Resolve(logging.Token)
	assert.NoError(t, err)

	_, err = f.Resolve("github")
	var notFound *container.ServiceNotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Contains(t, f.Disabled()["github"], "GITHUB_TOKEN")
}

func TestFactory_ConfigIsRegistered(t *testing.T) {
	cfg := testConfig("gh")
	f := bootstrap.New(cfg, container.NewRegistry())
	require.NoError(t, f.Initialize(context.Background()))

	got, err := container.Resolve[*config.Config](f, config.Token)
	require.NoError(t, err)
	assert.Same(t, cfg, got)

	snap, err := container.Resolve[config.Snapshot](f, config.SnapshotToken)
	require.NoError(t, err)
	assert.Equal(t, "gh", snap["GITHUB_TOKEN"])
}

func TestFactory_ClearThenReinitialize(t *testing.T) {
	f := bootstrap.New(testConfig("gh"), container.NewRegistry(),
		bootstrap.WithProviders(loggerProvider(), githubProvider(okBuild)))
	ctx := context.Background()

	require.NoError(t, f.Initialize(ctx))
	_, err := f.Resolve("github")
	require.NoError(t, err)

	f.Clear()
	f.Clear()
	assert.Equal(t, bootstrap.StateUninitialized, f.State())
	_, err = f.Resolve("github")
	assert.True(t, container.IsNotFound(err))

	require.NoError(t, f.Initialize(ctx))
	_, err = f.Resolve("github")
	assert.NoError(t, err)
}

func TestFactory_InitializeTwice(t *testing.T) {
	f := bootstrap.New(testConfig(""), container.NewRegistry())
	require.NoError(t, f.Initialize(context.Background()))

	assert.ErrorIs(t, f.Initialize(context.Background()), bootstrap.ErrAlreadyInitialized)
}

func TestFactory_InfrastructureFailureIsFatal(t *testing.T) {
	broken := &stubProvider{
		name:  "events",
		tier:  bootstrap.TierInfrastructure,
		token: "events",
		build: func() (any, error) { return nil, errors.New("bus exploded") },
	}
	f := bootstrap.New(testConfig("gh"), container.NewRegistry(),
		bootstrap.WithProviders(loggerProvider(), broken, githubProvider(okBuild)))

	err := f.Initialize(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "events")
	assert.Contains(t, err.Error(), "bus exploded")
	assert.Equal(t, bootstrap.StateUninitialized, f.State())
	assert.Empty(t, f.Container().RegisteredServices())
}

func TestFactory_CancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := bootstrap.New(testConfig(""), container.NewRegistry(), bootstrap.WithProviders(loggerProvider()))

	assert.ErrorIs(t, f.Initialize(ctx), context.Canceled)
	assert.Equal(t, bootstrap.StateUninitialized, f.State())
}

func TestFactory_BusinessFailureIsDowngraded(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := bootstrap.New(testConfig("gh"), container.NewRegistry(),
		bootstrap.WithLogger(zap.New(core)),
		bootstrap.WithProviders(loggerProvider(), githubProvider(func() (any, error) {
			return nil, errors.New("bad credentials")
		})))

	require.NoError(t, f.Initialize(context.Background()))

	assert.Equal(t, bootstrap.StateReady, f.State())
	assert.False(t, f.Container().Has("github"))
	_, err := f.Resolve("github")
	assert.True(t, container.IsNotFound(err))
	assert.Contains(t, f.Disabled()["github"], "bad credentials")

	warned := logs.FilterField(zap.String("service", "github")).All()
	require.Len(t, warned, 1)
	assert.Equal(t, zapcore.WarnLevel, warned[0].Level)
}

func TestFactory_BusinessBootFailureIsDowngraded(t *testing.T) {
	p := githubProvider(okBuild)
	p.boot = func(*container.Container) error { return errors.New("subscribe failed") }
	f := bootstrap.New(testConfig("gh"), container.NewRegistry(), bootstrap.WithProviders(p))

	require.NoError(t, f.Initialize(context.Background()))

	assert.False(t, f.Container().Has("github"))
	assert.Contains(t, f.Disabled()["github"], "subscribe failed")
}

func TestFactory_InfrastructureComesFirst(t *testing.T) {
	var bootSawLogger atomic.Bool
	business := githubProvider(okBuild)
	business.boot = func(c *container.Container) error {
		_, err := c.Resolve(logging.Token)
		bootSawLogger.Store(err == nil)
		return err
	}
	// Declared before the infrastructure provider on purpose.
	f := bootstrap.New(testConfig("gh"), container.NewRegistry(),
		bootstrap.WithProviders(business, loggerProvider()))

	require.NoError(t, f.Initialize(context.Background()))
	assert.True(t, bootSawLogger.Load())
}

// ── Health ────────────────────────────────────────────────────────────────────

func TestFactory_HealthPassOnBoot(t *testing.T) {
	down := &stubProvider{
		name:  "notes",
		token: "notes",
		build: func() (any, error) { return &probe{err: errors.New("table missing")}, nil },
	}
	stuck := &stubProvider{
		name:  "messaging",
		token: "messaging",
		build: func() (any, error) { return slowProbe{}, nil },
	}
	plain := &stubProvider{
		name:  "plain",
		token: "plain",
		build: func() (any, error) { return "no probe here", nil },
	}
	f := bootstrap.New(testConfig("gh"), container.NewRegistry(),
		bootstrap.WithHealthCheckOnBoot(true),
		bootstrap.WithHealthTimeout(50*time.Millisecond),
		bootstrap.WithProviders(githubProvider(okBuild), down, stuck, plain))

	require.NoError(t, f.Initialize(context.Background()))

	last := f.LastHealth()
	require.Len(t, last, 3)
	assert.True(t, last["github"].Healthy)
	assert.Equal(t, health.Status{Healthy: false, Detail: "table missing"}, last["notes"])
	assert.False(t, last["messaging"].Healthy)
	assert.False(t, last.Healthy())
	assert.Equal(t, []string{"messaging", "notes"}, last.Failing())
}

func TestFactory_HealthCheckWithoutProbes(t *testing.T) {
	f := bootstrap.New(testConfig(""), container.NewRegistry(), bootstrap.WithProviders(loggerProvider()))
	require.NoError(t, f.Initialize(context.Background()))

	assert.Nil(t, f.LastHealth())
	s := f.HealthCheck(context.Background())
	assert.Empty(t, s)
	assert.True(t, s.Healthy())
}

func TestFactory_RegisterOverrideJoinsHealthPass(t *testing.T) {
	f := bootstrap.New(testConfig(""), container.NewRegistry())
	require.NoError(t, f.Initialize(context.Background()))

	require.NoError(t, f.Register("fake", container.Value(&probe{err: errors.New("down")})))

	got := f.HealthCheck(context.Background())
	assert.False(t, got["fake"].Healthy)
}

// ── Metrics ───────────────────────────────────────────────────────────────────

func TestFactory_RecordsBootstrapMetrics(t *testing.T) {
	m := metrics.NewCollector("test")
	metricsProvider := &stubProvider{
		name:  "metrics",
		tier:  bootstrap.TierInfrastructure,
		token: metrics.Token,
		build: func() (any, error) { return m, nil },
	}
	f := bootstrap.New(testConfig(""), container.NewRegistry(),
		bootstrap.WithProviders(metricsProvider, githubProvider(okBuild)))

	require.NoError(t, f.Initialize(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bootstrap.WithLabelValues("infrastructure", "enabled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Bootstrap.WithLabelValues("business", "disabled")))
}
