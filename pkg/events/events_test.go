package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypes(t *testing.T) {
	assert.Equal(t, InstanceSubmittedEvent, InstanceSubmitted{}.GetType())
	assert.Equal(t, InstanceClaimedEvent, InstanceClaimed{}.GetType())
	assert.Equal(t, NodeExecutedEvent, NodeExecuted{}.GetType())
	assert.Equal(t, InstanceCompletedEvent, InstanceCompleted{}.GetType())
	assert.Equal(t, InstanceRetryScheduledEvent, InstanceRetryScheduled{}.GetType())
	assert.Equal(t, InstanceFailedEvent, InstanceFailed{}.GetType())
}

func TestRetryScheduled_JSON(t *testing.T) {
	availableAt := time.Date(2025, 1, 1, 0, 0, 30, 0, time.UTC)
	event := InstanceRetryScheduled{
		BaseEvent:   NewBase("ev-1", InstanceRetryScheduledEvent, "wf", "i-1", "worker-1"),
		Attempt:     1,
		AvailableAt: availableAt,
		Error:       "smtp timeout",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "instance.retry_scheduled", decoded["type"])
	assert.Equal(t, "i-1", decoded["instance_id"])
	assert.Equal(t, "2025-01-01T00:00:30Z", decoded["available_at"])
	assert.InDelta(t, 1, decoded["attempt"], 0)
}

func TestTypes(t *testing.T) {
	types := Types()
	assert.Len(t, types, 6)

	for _, eventType := range types {
		assert.True(t, eventType.Valid(), eventType)
	}

	assert.False(t, EventType("instance.deleted").Valid())
	assert.False(t, EventType("").Valid())
}
