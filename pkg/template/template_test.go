package template

import (
	"encoding/json"
	"testing"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	data := map[string]any{"name": "Ada", "order": map[string]any{"id": "42"}}

	testCases := []struct {
		name     string
		template string
		expected string
	}{
		{"plain text", "hello", "hello"},
		{"top level field", "Hi {{.name}}", "Hi Ada"},
		{"nested field", "Order {{.order.id}}", "Order 42"},
		{"default", `{{default "friend" .name}}`, "Ada"},
		{"upper", "{{upper .name}}", "ADA"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Render(tc.template, data)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestRender_Errors(t *testing.T) {
	_, err := Render("{{.missing}}", map[string]any{})
	require.ErrorIs(t, err, ErrRender)

	_, err = Render("{{.name", map[string]any{})
	require.ErrorIs(t, err, ErrRender)
}

func TestDecodePayload(t *testing.T) {
	data, err := DecodePayload(json.RawMessage(`{"order_id": 42, "email": "a@b.c"}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("42"), data["order_id"])

	data, err = DecodePayload(nil)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = DecodePayload(json.RawMessage(`[1,2]`))
	require.ErrorIs(t, err, ErrRender)
}

func TestRenderBindings(t *testing.T) {
	data, err := DecodePayload(json.RawMessage(`{"order_id": 42, "email": "a@b.c"}`))
	require.NoError(t, err)

	rendered, err := RenderBindings(models.EmailBindings{
		ToTemplate:   "{{.email}}",
		BodyTemplate: "Order {{.order_id}} shipped",
	}, data)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"to": "a@b.c", "subject": "", "body": "Order 42 shipped"}, rendered)

	_, err = RenderBindings(models.SMSBindings{ToTemplate: "{{.phone}}", BodyTemplate: "x"}, data)
	require.ErrorIs(t, err, ErrRender)

	rendered, err = RenderBindings(models.DelayBindings{Duration: models.Duration(1)}, data)
	require.NoError(t, err)
	assert.Empty(t, rendered)
}
