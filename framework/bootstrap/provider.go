package bootstrap

import (
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/validation"
)

// Tier decides how a provider's failures are treated at bootstrap.
type Tier string

const (
	// TierInfrastructure providers must succeed; any error aborts Initialize.
	TierInfrastructure Tier = "infrastructure"
	// TierBusiness providers are optional; failures disable the service.
	TierBusiness Tier = "business"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider registers one service (or a small group) into the
// container.
//
// Register binds tokens and must not resolve anything. Boot runs after
// every provider of the tier has been registered and eagerly resolved, so
// it may resolve other tokens and wire listeners.
//
//	type GitHubProvider struct{ bootstrap.BaseProvider }
//
//	func (p *GitHubProvider) Requires() validation.Rules {
//	    return validation.Rules{"GITHUB_TOKEN": "required"}
//	}
//
//	func (p *GitHubProvider) Register(c *container.Container) error {
//	    c.Registry().Declare(github.Token, container.WithFactory(github.Build), container.Needs(config.Token))
//	    return c.RegisterClass(github.Token)
//	}
type ServiceProvider interface {
	// Name identifies the service in logs, Disabled() and health summaries.
	Name() string

	Tier() Tier

	// Requires is the availability predicate, evaluated against the
	// configuration snapshot. Empty rules mean always available.
	Requires() validation.Rules

	// Provides lists the tokens Register binds. They are resolved eagerly
	// at bootstrap and unregistered again if the provider fails.
	Provides() []container.Token

	Register(c *container.Container) error

	Boot(c *container.Container) error
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct giving business tier, no
// requirements, no tokens and a no-op Boot. Embed it and override what
// you need.
type BaseProvider struct{}

func (BaseProvider) Tier() Tier                      { return TierBusiness }
func (BaseProvider) Requires() validation.Rules      { return nil }
func (BaseProvider) Provides() []container.Token     { return nil }
func (BaseProvider) Boot(*container.Container) error { return nil }

// InfrastructureProvider is BaseProvider for the infrastructure tier.
type InfrastructureProvider struct{ BaseProvider }

func (InfrastructureProvider) Tier() Tier { return TierInfrastructure }
