// Package providers registers the optional business services. Each one is
// enabled only when the settings it requires are present.
package providers

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseb "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/app/listeners"
	"github.com/km-arc/go-assistant/app/services/eventbridge"
	"github.com/km-arc/go-assistant/app/services/github"
	"github.com/km-arc/go-assistant/app/services/messaging"
	"github.com/km-arc/go-assistant/app/services/notes"
	"github.com/km-arc/go-assistant/app/services/transcription"
	"github.com/km-arc/go-assistant/framework/bootstrap"
	"github.com/km-arc/go-assistant/framework/config"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/events"
	"github.com/km-arc/go-assistant/framework/logging"
	"github.com/km-arc/go-assistant/framework/validation"
)

// AWSToken is the container token of the shared aws.Config.
var AWSToken = container.TypeOf[aws.Config]()

// All returns the business providers. AWS precedes the services built on it.
func All() []bootstrap.ServiceProvider {
	return []bootstrap.ServiceProvider{
		&MessagingServiceProvider{},
		&TranscriptionServiceProvider{},
		&GitHubServiceProvider{},
		&AWSServiceProvider{},
		&NotesServiceProvider{},
		&EventBridgeServiceProvider{},
		&CommandServiceProvider{},
	}
}

func declare(c *container.Container, token container.Token, opts ...container.Option) error {
	c.Registry().Declare(token, opts...)
	return c.RegisterClass(token)
}

// ── Messaging ─────────────────────────────────────────────────────────────────

// MessagingServiceProvider registers the Z-API client. It needs the
// instance credentials, one of the client or security tokens, and the
// owner's phone number.
type MessagingServiceProvider struct{ bootstrap.BaseProvider }

func (p *MessagingServiceProvider) Name() string { return "messaging" }

func (p *MessagingServiceProvider) Requires() validation.Rules {
	return validation.Rules{
		"ZAPI_INSTANCE_ID":    "required",
		"ZAPI_INSTANCE_TOKEN": "required",
		"ZAPI_CLIENT_TOKEN":   "required_without:ZAPI_SECURITY_TOKEN",
		"OWNER_PHONE":         "required|numeric",
	}
}

func (p *MessagingServiceProvider) Provides() []container.Token {
	return []container.Token{messaging.Token}
}

func (p *MessagingServiceProvider) Register(c *container.Container) error {
	return declare(c, messaging.Token,
		container.Needs(config.Token, logging.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			cfg := container.Dep[*config.Config](deps, 0)
			return messaging.NewClient(cfg.Messaging, container.Dep[*zap.Logger](deps, 1).Named("messaging"))
		}),
	)
}

// ── Transcription ─────────────────────────────────────────────────────────────

type TranscriptionServiceProvider struct{ bootstrap.BaseProvider }

func (p *TranscriptionServiceProvider) Name() string { return "transcription" }

func (p *TranscriptionServiceProvider) Requires() validation.Rules {
	return validation.Rules{"OPENAI_API_KEY": "required"}
}

func (p *TranscriptionServiceProvider) Provides() []container.Token {
	return []container.Token{transcription.Token}
}

func (p *TranscriptionServiceProvider) Register(c *container.Container) error {
	return declare(c, transcription.Token,
		container.Needs(config.Token, logging.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			cfg := container.Dep[*config.Config](deps, 0)
			return transcription.NewClient(cfg.Transcription, container.Dep[*zap.Logger](deps, 1).Named("transcription"))
		}),
	)
}

// ── GitHub ────────────────────────────────────────────────────────────────────

type GitHubServiceProvider struct{ bootstrap.BaseProvider }

func (p *GitHubServiceProvider) Name() string { return "github" }

func (p *GitHubServiceProvider) Requires() validation.Rules {
	return validation.Rules{"GITHUB_TOKEN": "required"}
}

func (p *GitHubServiceProvider) Provides() []container.Token {
	return []container.Token{github.Token}
}

func (p *GitHubServiceProvider) Register(c *container.Container) error {
	return declare(c, github.Token,
		container.Needs(config.Token, logging.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			cfg := container.Dep[*config.Config](deps, 0)
			return github.NewClient(cfg.GitHub, container.Dep[*zap.Logger](deps, 1).Named("github"))
		}),
	)
}

// ── AWS ───────────────────────────────────────────────────────────────────────

// AWSServiceProvider loads the shared AWS configuration (credentials come
// from the default chain: env, profile or the Lambda role).
type AWSServiceProvider struct{ bootstrap.BaseProvider }

func (p *AWSServiceProvider) Name() string { return "aws" }

func (p *AWSServiceProvider) Requires() validation.Rules {
	return validation.Rules{"AWS_REGION": "required"}
}

func (p *AWSServiceProvider) Provides() []container.Token {
	return []container.Token{AWSToken}
}

func (p *AWSServiceProvider) Register(c *container.Container) error {
	return declare(c, AWSToken,
		container.Needs(config.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			cfg := container.Dep[*config.Config](deps, 0)
			return awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWS.Region))
		}),
	)
}

// ── Notes ─────────────────────────────────────────────────────────────────────

type NotesServiceProvider struct{ bootstrap.BaseProvider }

func (p *NotesServiceProvider) Name() string { return "notes" }

func (p *NotesServiceProvider) Requires() validation.Rules {
	return validation.Rules{"NOTES_TABLE": "required", "AWS_REGION": "required"}
}

func (p *NotesServiceProvider) Provides() []container.Token {
	return []container.Token{notes.Token}
}

func (p *NotesServiceProvider) Register(c *container.Container) error {
	return declare(c, notes.Token,
		container.Needs(AWSToken, config.Token, logging.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			awsCfg := container.Dep[aws.Config](deps, 0)
			cfg := container.Dep[*config.Config](deps, 1)
			logger := container.Dep[*zap.Logger](deps, 2).Named("notes")
			return notes.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.Notes.Table, logger)
		}),
	)
}

// ── EventBridge ───────────────────────────────────────────────────────────────

// EventBridgeServiceProvider forwards every bus event to EVENT_BUS_NAME.
type EventBridgeServiceProvider struct{ bootstrap.BaseProvider }

func (p *EventBridgeServiceProvider) Name() string { return "eventbridge" }

func (p *EventBridgeServiceProvider) Requires() validation.Rules {
	return validation.Rules{"EVENT_BUS_NAME": "required", "AWS_REGION": "required"}
}

func (p *EventBridgeServiceProvider) Provides() []container.Token {
	return []container.Token{eventbridge.Token}
}

func (p *EventBridgeServiceProvider) Register(c *container.Container) error {
	return declare(c, eventbridge.Token,
		container.Needs(AWSToken, config.Token, logging.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			awsCfg := container.Dep[aws.Config](deps, 0)
			cfg := container.Dep[*config.Config](deps, 1)
			logger := container.Dep[*zap.Logger](deps, 2).Named("eventbridge")
			return eventbridge.NewForwarder(awseb.NewFromConfig(awsCfg), cfg.Events.BusName, cfg.Events.Source, logger)
		}),
	)
}

func (p *EventBridgeServiceProvider) Boot(c *container.Container) error {
	bus, err := container.Resolve[*events.Bus](c, events.Token)
	if err != nil {
		return err
	}
	fwd, err := container.Resolve[*eventbridge.Forwarder](c, eventbridge.Token)
	if err != nil {
		return err
	}
	bus.Subscribe(events.Wildcard, fwd.Forward)
	return nil
}

// ── Commands ──────────────────────────────────────────────────────────────────

// CommandServiceProvider subscribes the chat command listener. It has no
// requirements of its own; commands for disabled services answer with a
// "feature disabled" reply.
type CommandServiceProvider struct{ bootstrap.BaseProvider }

func (p *CommandServiceProvider) Name() string { return "commands" }

func (p *CommandServiceProvider) Provides() []container.Token {
	return []container.Token{listeners.Token}
}

func (p *CommandServiceProvider) Register(c *container.Container) error {
	return declare(c, listeners.Token,
		container.Needs(logging.Token),
		container.WithFactory(func(deps ...any) (any, error) {
			return listeners.NewCommands(c, container.Dep[*zap.Logger](deps, 0).Named("commands")), nil
		}),
	)
}

func (p *CommandServiceProvider) Boot(c *container.Container) error {
	bus, err := container.Resolve[*events.Bus](c, events.Token)
	if err != nil {
		return err
	}
	cmds, err := container.Resolve[*listeners.Commands](c, listeners.Token)
	if err != nil {
		return err
	}
	bus.Subscribe(messaging.EventReceived, cmds.Handle)
	return nil
}
