// Package events is the in-process event bus connecting webhook intake to
// the listeners that act on it.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/km-arc/go-assistant/framework/container"
)

// Token is the container token of the *Bus.
var Token = container.TypeOf[*Bus]()

// Event is one published occurrence.
type Event struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurredAt"`
}

// New stamps a new event with an ID and the current time.
func New(name string, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// Listener handles one event.
type Listener func(ctx context.Context, e Event) error

// Wildcard subscribes a listener to every event name.
const Wildcard = "*"

// Bus dispatches events synchronously to the listeners subscribed to their
// name, in subscription order.
type Bus struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
	logger    *zap.Logger
}

// NewBus creates an empty bus. A nil logger is replaced by a no-op one.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{listeners: make(map[string][]Listener), logger: logger}
}

// Subscribe adds l for events called name, or every event for Wildcard.
func (b *Bus) Subscribe(name string, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], l)
}

// Publish runs every matching listener. All listeners run even if some
// fail; their errors are joined.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	ls := append(append([]Listener(nil), b.listeners[e.Name]...), b.listeners[Wildcard]...)
	b.mu.RUnlock()

	b.logger.Debug("publishing event",
		zap.String("event", e.Name),
		zap.String("event_id", e.ID),
		zap.Int("listeners", len(ls)))

	var errs []error
	for _, l := range ls {
		if err := l(ctx, e); err != nil {
			b.logger.Warn("event listener failed",
				zap.String("event", e.Name),
				zap.String("event_id", e.ID),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("event %s: %w", e.Name, errors.Join(errs...))
	}
	return nil
}
