// Package listeners reacts to events on the in-process bus.
package listeners

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/app/services/github"
	"github.com/km-arc/go-assistant/app/services/messaging"
	"github.com/km-arc/go-assistant/app/services/notes"
	"github.com/km-arc/go-assistant/app/services/transcription"
	"github.com/km-arc/go-assistant/framework/container"
	"github.com/km-arc/go-assistant/framework/events"
)

// Token is the container token of the *Commands listener.
var Token = container.TypeOf[*Commands]()

const helpText = `Commands:
/note <text>   save a note
/notes         list your latest notes
/repos <query> search GitHub repositories
/help          show this message`

// Services looks up optional collaborators. *container.Container
// satisfies it.
type Services interface {
	ResolveOptional(token container.Token) (any, error)
}

// Commands answers chat commands sent by the owner. Every collaborator is
// looked up per message, so a disabled service yields a "feature disabled"
// reply instead of an error. Without messaging there is no owner to answer
// and every message is ignored.
type Commands struct {
	services Services
	logger   *zap.Logger
}

// NewCommands creates the listener.
func NewCommands(services Services, logger *zap.Logger) *Commands {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Commands{services: services, logger: logger}
}

// Handle processes one message.received event.
func (c *Commands) Handle(ctx context.Context, e events.Event) error {
	in, ok := e.Payload.(messaging.Inbound)
	if !ok {
		return fmt.Errorf("commands: unexpected payload %T", e.Payload)
	}

	client, err := lookup[*messaging.Client](c, messaging.Token, "messaging")
	if err != nil {
		var disabled *DisabledError
		if errors.As(err, &disabled) {
			c.logger.Info("message ignored", zap.String("reason", err.Error()))
			return nil
		}
		return err
	}
	if in.Phone != client.OwnerPhone() {
		c.logger.Warn("message from unknown sender ignored",
			zap.String("message_id", in.MessageID),
			zap.String("phone", in.Phone))
		return nil
	}

	text := in.Text
	transcribed := false
	if text == "" && in.AudioURL != "" {
		t, err := c.transcribe(ctx, in.AudioURL)
		if err != nil {
			return c.replyErr(ctx, client, in.Phone, err)
		}
		text, transcribed = t, true
	}

	reply, err := c.dispatch(ctx, in.Phone, text)
	if err != nil {
		return c.replyErr(ctx, client, in.Phone, err)
	}
	if reply == "" && transcribed {
		reply = "🎙 " + text
	}
	if reply == "" {
		return nil
	}
	_, err = client.SendText(ctx, in.Phone, reply)
	return err
}

func (c *Commands) dispatch(ctx context.Context, phone, text string) (string, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(text), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/help":
		return helpText, nil
	case "/note":
		if arg == "" {
			return "Usage: /note <text>", nil
		}
		store, err := lookup[*notes.Store](c, notes.Token, "notes")
		if err != nil {
			return "", err
		}
		n, err := store.Save(ctx, phone, arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Saved note %s.", n.ID[:8]), nil
	case "/notes":
		store, err := lookup[*notes.Store](c, notes.Token, "notes")
		if err != nil {
			return "", err
		}
		recent, err := store.Recent(ctx, phone, 5)
		if err != nil {
			return "", err
		}
		if len(recent) == 0 {
			return "No notes yet.", nil
		}
		var b strings.Builder
		b.WriteString("Latest notes:")
		for _, n := range recent {
			fmt.Fprintf(&b, "\n- %s (%s)", n.Text, n.CreatedAt.Format("Jan 2 15:04"))
		}
		return b.String(), nil
	case "/repos":
		if arg == "" {
			return "Usage: /repos <query>", nil
		}
		gh, err := lookup[*github.Client](c, github.Token, "github")
		if err != nil {
			return "", err
		}
		repos, err := gh.SearchRepositories(ctx, arg, 5)
		if err != nil {
			return "", err
		}
		return github.Digest(arg, repos), nil
	default:
		return "", nil
	}
}

func (c *Commands) transcribe(ctx context.Context, url string) (string, error) {
	tc, err := lookup[*transcription.Client](c, transcription.Token, "transcription")
	if err != nil {
		return "", err
	}
	return tc.TranscribeURL(ctx, url)
}

// DisabledError names a feature whose service is not registered.
type DisabledError struct {
	Feature string
}

func (e *DisabledError) Error() string { return "feature disabled: " + e.Feature }

// lookup resolves an optional collaborator, mapping absence to DisabledError.
func lookup[T any](c *Commands, token container.Token, feature string) (T, error) {
	var zero T
	inst, err := c.services.ResolveOptional(token)
	if err != nil {
		return zero, err
	}
	if inst == nil {
		return zero, &DisabledError{Feature: feature}
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("commands: %s resolved to %T", token, inst)
	}
	return typed, nil
}

// replyErr tells the sender what went wrong. Disabled features are an
// expected outcome and are not returned as errors.
func (c *Commands) replyErr(ctx context.Context, client *messaging.Client, phone string, err error) error {
	var disabled *DisabledError
	if errors.As(err, &disabled) {
		c.logger.Info("command for disabled feature", zap.String("feature", disabled.Feature))
		_, serr := client.SendText(ctx, phone, "Sorry, "+disabled.Error()+".")
		return serr
	}
	c.logger.Warn("command failed", zap.Error(err))
	if _, serr := client.SendText(ctx, phone, "Sorry, something went wrong."); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}
