package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownNodeType is returned when bindings are decoded for a type outside the closed set.
var ErrUnknownNodeType = errors.New("unknown node type")

// Bindings is the type-specific configuration of a node. Each node type has
// exactly one bindings variant.
type Bindings interface {
	NodeType() NodeType
	// Templates returns the templated fields rendered against the trigger payload.
	Templates() map[string]string
}

// EmailBindings configures an email node.
type EmailBindings struct {
	ToTemplate      string `json:"email_to_template"                validate:"required"`
	SubjectTemplate string `json:"email_subject_template,omitempty"`
	BodyTemplate    string `json:"email_body_template"              validate:"required"`
}

func (EmailBindings) NodeType() NodeType { return NodeTypeEmail }

func (b EmailBindings) Templates() map[string]string {
	return map[string]string{
		"to":      b.ToTemplate,
		"subject": b.SubjectTemplate,
		"body":    b.BodyTemplate,
	}
}

// SMSBindings configures an sms node.
type SMSBindings struct {
	ToTemplate   string `json:"sms_to_template"   validate:"required"`
	BodyTemplate string `json:"sms_body_template" validate:"required"`
}

func (SMSBindings) NodeType() NodeType { return NodeTypeSMS }

func (b SMSBindings) Templates() map[string]string {
	return map[string]string{
		"to":   b.ToTemplate,
		"body": b.BodyTemplate,
	}
}

// DelayBindings configures a delay node.
type DelayBindings struct {
	Duration Duration `json:"delay_duration" validate:"gt=0"`
}

func (DelayBindings) NodeType() NodeType { return NodeTypeDelay }

func (DelayBindings) Templates() map[string]string {
	return map[string]string{}
}

// Duration is a time.Duration that reads and writes Go duration strings ("2h", "90s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var value any

	err := json.Unmarshal(data, &value)
	if err != nil {
		return err
	}

	switch v := value.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}

		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v) * time.Second)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %v", value)
	}

	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DecodeBindings converts a loosely typed config map into the bindings
// variant for nodeType. Fields that belong to another variant are rejected.
// Required fields are not checked here.
func DecodeBindings(nodeType NodeType, config map[string]any) (Bindings, error) {
	if config == nil {
		config = map[string]any{}
	}

	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bindings: %w", err)
	}

	switch nodeType {
	case NodeTypeEmail:
		var b EmailBindings

		err = decodeStrict(data, &b)
		if err != nil {
			return nil, err
		}

		return b, nil
	case NodeTypeSMS:
		var b SMSBindings

		err = decodeStrict(data, &b)
		if err != nil {
			return nil, err
		}

		return b, nil
	case NodeTypeDelay:
		var b DelayBindings

		err = decodeStrict(data, &b)
		if err != nil {
			return nil, err
		}

		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
}

func decodeStrict(data []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	err := decoder.Decode(target)
	if err != nil {
		return fmt.Errorf("invalid bindings: %w", err)
	}

	return nil
}

// BindingsToConfig converts bindings back to their config map form.
func BindingsToConfig(b Bindings) (map[string]any, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bindings: %w", err)
	}

	config := map[string]any{}

	err = json.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bindings: %w", err)
	}

	return config, nil
}

// MergeConfig overlays override on top of defaults without mutating either.
func MergeConfig(defaults, override map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(override))

	for k, v := range defaults {
		merged[k] = v
	}

	for k, v := range override {
		merged[k] = v
	}

	return merged
}
