package definition

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dukex/notiflow/pkg/locker"
	"github.com/dukex/notiflow/pkg/log"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence/file"
	"github.com/dukex/notiflow/pkg/registry"
	"github.com/dukex/notiflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderDocument = `
templates:
  - code: order-email
    name: Order email
    type: email
    config:
      email_to_template: "{{.email}}"
      email_subject_template: "Order {{.order_id}}"
      email_body_template: "Hello {{.name}}"

workflows:
  - code: order-shipped
    name: Order shipped
    owner: ops
    activate: true
    payload_schema:
      type: object
      required: [order_id, email]
    nodes:
      - id: a
        name: Confirmation
        template: order-email
      - id: b
        type: delay
        name: Wait
        config:
          delay_duration: 2h
      - id: c
        type: sms
        name: Shipped
        config:
          sms_to_template: "{{.phone}}"
          sms_body_template: "Order {{.order_id}} shipped"
    edges:
      - {from: a, to: b}
      - {from: b, to: c}
`

func newImporter(t *testing.T) (*Importer, *registry.Templates) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	templates := registry.NewTemplates(store.TemplateRepository(), log.Discard())
	lock := locker.NewLocal()

	return NewImporter(
		templates,
		services.NewWorkflow(store, log.Discard()),
		services.NewNode(store, templates, lock, log.Discard()),
		services.NewEdge(store, lock, log.Discard()),
		log.Discard(),
	), templates
}

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(orderDocument))
	require.NoError(t, err)

	require.Len(t, doc.Templates, 1)
	assert.Equal(t, models.NodeTypeEmail, doc.Templates[0].Type)

	require.Len(t, doc.Workflows, 1)
	flow := doc.Workflows[0]
	assert.Equal(t, "order-shipped", flow.Code)
	assert.True(t, flow.Activate)
	assert.Len(t, flow.Nodes, 3)
	assert.Equal(t, EdgeDefinition{From: "b", To: "c"}, flow.Edges[1])
	assert.Equal(t, "2h", flow.Nodes[1].Config["delay_duration"])
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{name: "blank", doc: "  \n"},
		{name: "no content", doc: "templates: []\n"},
		{name: "unknown field", doc: "workflows:\n  - code: x\n    steps: []\n"},
		{name: "not yaml", doc: "workflows: [\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.yaml")
	require.NoError(t, os.WriteFile(path, []byte(orderDocument), 0600))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, doc.Workflows, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	doc, err = Load(strings.NewReader(orderDocument))
	require.NoError(t, err)
	assert.Len(t, doc.Templates, 1)
}

func TestImporter_Import(t *testing.T) {
	importer, templates := newImporter(t)
	ctx := t.Context()

	doc, err := Parse([]byte(orderDocument))
	require.NoError(t, err)

	result, err := importer.Import(ctx, doc)
	require.NoError(t, err)

	require.Len(t, result.Templates, 1)
	stored, err := templates.Get(ctx, "order-email")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)

	require.Len(t, result.Workflows, 1)
	flow := result.Workflows[0]
	assert.True(t, flow.IsActive)
	assert.Equal(t, 1, flow.Version)
	require.NotNil(t, flow.EntryNodeID)
	assert.Equal(t, "a", *flow.EntryNodeID)
	assert.Len(t, flow.Nodes, 3)
	assert.Len(t, flow.Edges, 2)

	entry, ok := flow.Node("a")
	require.True(t, ok)
	assert.Equal(t, models.NodeTypeEmail, entry.Type)
	assert.Equal(t, models.EmailBindings{
		ToTemplate:      "{{.email}}",
		SubjectTemplate: "Order {{.order_id}}",
		BodyTemplate:    "Hello {{.name}}",
	}, entry.Bindings)

	wait, ok := flow.Node("b")
	require.True(t, ok)
	assert.Equal(t, models.DelayBindings{Duration: models.Duration(2 * time.Hour)}, wait.Bindings)

	again, err := importer.Import(ctx, &Document{Workflows: doc.Workflows})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Workflows[0].Version)
}

func TestImporter_StopsOnInvalidGraph(t *testing.T) {
	importer, _ := newImporter(t)

	doc, err := Parse([]byte(`
workflows:
  - code: looping
    name: Looping
    nodes:
      - {id: a, type: sms, name: A, config: {sms_to_template: x, sms_body_template: y}}
      - {id: b, type: sms, name: B, config: {sms_to_template: x, sms_body_template: y}}
    edges:
      - {from: a, to: b}
      - {from: b, to: a}
`))
	require.NoError(t, err)

	result, err := importer.Import(t.Context(), doc)
	require.ErrorIs(t, err, services.ErrCycleDetected)
	assert.Empty(t, result.Workflows)
}

func TestImporter_RejectsIncompleteTemplate(t *testing.T) {
	importer, _ := newImporter(t)

	_, err := importer.Import(t.Context(), &Document{Templates: []*models.NodeTemplate{{
		Code:   "broken",
		Name:   "Broken",
		Type:   models.NodeTypeSMS,
		Config: map[string]any{"sms_body_template": "hi"},
	}}})
	assert.Error(t, err)
}
