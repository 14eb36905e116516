// Package template renders node bindings against a trigger payload.
package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/notiflow/pkg/models"
)

// ErrRender marks a binding that cannot be rendered against the payload.
var ErrRender = errors.New("binding render failed")

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"default": func(fallback, value any) any {
		if value == nil || value == "" {
			return fallback
		}

		return value
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// Render executes templateStr against data. Missing keys are errors.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("binding").
		Option("missingkey=error").
		Funcs(funcs).
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse template '%s': %w", ErrRender, templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("%w: failed to execute template '%s': %w", ErrRender, templateStr, err)
	}

	return buf.String(), nil
}

// DecodePayload turns raw payload bytes into template data. Numbers stay json.Number.
func DecodePayload(payload json.RawMessage) (map[string]any, error) {
	data := map[string]any{}

	if len(bytes.TrimSpace(payload)) == 0 {
		return data, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()

	err := decoder.Decode(&data)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON object: %w", ErrRender, err)
	}

	return data, nil
}

// RenderBindings renders every templated field of bindings; empty fields stay empty.
func RenderBindings(bindings models.Bindings, data map[string]any) (map[string]string, error) {
	rendered := make(map[string]string)

	for field, templateStr := range bindings.Templates() {
		if templateStr == "" {
			rendered[field] = ""

			continue
		}

		value, err := Render(templateStr, data)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}

		rendered[field] = value
	}

	return rendered, nil
}
