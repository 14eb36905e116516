package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/notiflow/pkg/channels/gochannel"
	"github.com/dukex/notiflow/pkg/eventbus"
	"github.com/dukex/notiflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
	})

	received := make(chan *events.InstanceCompleted, 1)

	require.NoError(t, bus.Handle(events.InstanceCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.InstanceCompleted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	require.NoError(t, bus.Publish(t.Context(), "i-1", events.InstanceSubmitted{
		BaseEvent: events.NewBase(bus.GenerateID(), events.InstanceSubmittedEvent, "wf", "i-1", ""),
	}))
	require.NoError(t, bus.Publish(t.Context(), "i-1", events.InstanceCompleted{
		BaseEvent: events.NewBase(bus.GenerateID(), events.InstanceCompletedEvent, "wf", "i-1", "w"),
		Attempts:  2,
	}))

	select {
	case event := <-received:
		assert.Equal(t, "i-1", event.InstanceID)
		assert.Equal(t, 2, event.Attempts)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNopPublisher(t *testing.T) {
	var publisher eventbus.EventPublisher = eventbus.NopPublisher{}

	assert.NoError(t, publisher.Publish(t.Context(), "k", events.InstanceFailed{}))
}
