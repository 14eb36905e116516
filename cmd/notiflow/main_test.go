package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const definitionFile = `
templates:
  - code: welcome-sms
    name: Welcome sms
    type: sms
    config:
      sms_to_template: "{{.phone}}"
      sms_body_template: "Welcome {{.name}}"
workflows:
  - code: welcome
    name: Welcome
    activate: true
    nodes:
      - {id: greet, name: Greet, template: welcome-sms}
`

func run(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	command := NewRootCommand()
	command.Writer = &out

	full := append([]string{"notiflow", "--database-url", "file://" + dataDir, "--log-level", "error"}, args...)
	err := command.Run(t.Context(), full)

	return out.String(), err
}

func TestCLI_ImportSubmitAndInspect(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "welcome.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definitionFile), 0600))

	out, err := run(t, dataDir, "workflow", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "welcome v1")
	assert.Contains(t, out, "active=true")

	out, err = run(t, dataDir, "workflow", "latest", "--code", "welcome")
	require.NoError(t, err)

	var flow models.Workflow
	require.NoError(t, json.Unmarshal([]byte(out), &flow))
	assert.Equal(t, 1, flow.Version)

	out, err = run(t, dataDir, "submit", "--key", "user-7", "--payload", `{"phone":"+1","name":"Ana"}`, flow.ID)
	require.NoError(t, err)

	var instance models.TriggerInstance
	require.NoError(t, json.Unmarshal([]byte(out), &instance))
	assert.Equal(t, models.InstanceStatusEnqueued, instance.Status)

	out, err = run(t, dataDir, "instance", "list", "--workflow", flow.ID, "--status", "enqueued")
	require.NoError(t, err)

	var instances []*models.TriggerInstance
	require.NoError(t, json.Unmarshal([]byte(out), &instances))
	require.Len(t, instances, 1)
	assert.Equal(t, instance.ID, instances[0].ID)

	out, err = run(t, dataDir, "instance", "update", "--status", "processing", instance.ID)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "processing"`)

	out, err = run(t, dataDir, "templates", "search", "--type", "sms")
	require.NoError(t, err)
	assert.Contains(t, out, "welcome-sms")
}

func TestCLI_Errors(t *testing.T) {
	dataDir := t.TempDir()

	_, err := run(t, dataDir, "workflow", "get")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing argument")

	_, err = run(t, dataDir, "submit", "--key", "k", "--payload", "{not json", "wf")
	require.Error(t, err)

	_, err = run(t, dataDir, "instance", "update", "--available-at", "tomorrow", "some-id")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "available-at"))
}

func TestReadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0600))

	payload, err := readPayload("@" + path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(payload))

	_, err = readPayload("@" + filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
