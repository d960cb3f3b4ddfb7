package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-assistant/framework/events"
)

func TestNew_StampsEvent(t *testing.T) {
	e := events.New("message.received", "hi")

	_, err := uuid.Parse(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, "message.received", e.Name)
	assert.False(t, e.OccurredAt.IsZero())
}

func TestBus_DispatchesInOrder(t *testing.T) {
	bus := events.NewBus(nil)
	var got []string
	bus.Subscribe("a", func(context.Context, events.Event) error { got = append(got, "first"); return nil })
	bus.Subscribe("a", func(context.Context, events.Event) error { got = append(got, "second"); return nil })
	bus.Subscribe("b", func(context.Context, events.Event) error { got = append(got, "other"); return nil })
	bus.Subscribe(events.Wildcard, func(context.Context, events.Event) error { got = append(got, "any"); return nil })

	require.NoError(t, bus.Publish(context.Background(), events.New("a", nil)))
	assert.Equal(t, []string{"first", "second", "any"}, got)
}

func TestBus_JoinsListenerErrors(t *testing.T) {
	bus := events.NewBus(nil)
	errA, errB := errors.New("a failed"), errors.New("b failed")
	ran := 0
	bus.Subscribe("x", func(context.Context, events.Event) error { ran++; return errA })
	bus.Subscribe("x", func(context.Context, events.Event) error { ran++; return errB })

	err := bus.Publish(context.Background(), events.New("x", nil))

	assert.Equal(t, 2, ran)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestBus_NoListeners(t *testing.T) {
	assert.NoError(t, events.NewBus(nil).Publish(context.Background(), events.New("nobody", nil)))
}
