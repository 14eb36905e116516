package cmd

import (
	"testing"

	"github.com/dukex/notiflow/pkg/config"
	"github.com/dukex/notiflow/pkg/eventbus"
	"github.com/dukex/notiflow/pkg/execution"
	"github.com/dukex/notiflow/pkg/log"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence/file"
	"github.com/dukex/notiflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePersistenceProvider(t *testing.T) {
	testCases := map[string]string{
		"file:///var/lib/notiflow":      "file",
		"./data":                        "file",
		"postgres://u:p@localhost/db":   "postgres",
		"postgresql://u:p@localhost/db": "postgres",
		"mysql://u:p@localhost/db":      "file",
	}

	for url, expected := range testCases {
		assert.Equal(t, expected, parsePersistenceProvider(url), url)
	}
}

func TestNewPersistence_File(t *testing.T) {
	store, err := NewPersistence(t.Context(), log.Discard(), "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, store)
	assert.NoError(t, store.HealthCheck(t.Context()))
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("gochannel", "", "notiflow", log.Discard())
	require.NoError(t, err)
	assert.NoError(t, bus.Close())

	_, err = NewEventBus("kafka", "", "notiflow", log.Discard())
	assert.Error(t, err)

	_, err = NewEventBus("rabbitmq", "", "notiflow", log.Discard())
	assert.Error(t, err)
}

func TestNewExecutors(t *testing.T) {
	executors, err := NewExecutors(log.Discard())
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypes(), executors.Types())
}

func TestNewLocker_Local(t *testing.T) {
	lock, closeLocker, err := NewLocker(t.Context(), "", 0, log.Discard())
	require.NoError(t, err)

	unlock, err := lock.Lock(t.Context(), "workflow:1")
	require.NoError(t, err)
	unlock()

	assert.NoError(t, closeLocker())
}

func TestNewServices(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	lock, _, err := NewLocker(t.Context(), "", 0, log.Discard())
	require.NoError(t, err)

	svc := NewServices(store, lock, execution.NewMachine(config.DefaultRetry()), eventbus.NopPublisher{}, log.Discard())

	flow, err := svc.Workflows.CreateWorkflow(t.Context(), servicesRequest("welcome"))
	require.NoError(t, err)

	_, err = svc.Nodes.AddNode(t.Context(), flow.ID, smsNode("a"))
	require.NoError(t, err)

	flow, err = svc.Workflows.Activate(t.Context(), flow.ID)
	require.NoError(t, err)

	instance, created, err := svc.Triggers.Submit(t.Context(), flow.ID, "user-1", []byte(`{"phone":"+1"}`))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.InstanceStatusEnqueued, instance.Status)
}

func servicesRequest(code string) services.CreateWorkflowRequest {
	entry := "a"

	return services.CreateWorkflowRequest{Code: code, Name: "Welcome", EntryNodeID: &entry}
}

func smsNode(id string) services.NodeSpec {
	return services.NodeSpec{
		ID:   id,
		Type: models.NodeTypeSMS,
		Name: "Welcome sms",
		Config: map[string]any{
			"sms_to_template":   "{{.phone}}",
			"sms_body_template": "Welcome",
		},
	}
}
