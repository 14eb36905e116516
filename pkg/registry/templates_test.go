package registry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/notiflow/pkg/log"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/dukex/notiflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTemplates(t *testing.T) *Templates {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	return NewTemplates(store.TemplateRepository(), log.Discard())
}

func TestTemplates_RegisterAndGet(t *testing.T) {
	ctx := context.Background()
	templates := newTestTemplates(t)

	err := templates.Register(ctx, &models.NodeTemplate{
		Code: "welcome-email",
		Name: "Welcome email",
		Type: models.NodeTypeEmail,
		Config: map[string]any{
			"email_to_template":   "{{.email}}",
			"email_body_template": "Welcome {{.name}}",
		},
	})
	require.NoError(t, err)

	template, err := templates.Get(ctx, "welcome-email")
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeEmail, template.Type)
	assert.NotEmpty(t, template.ID)
	assert.False(t, template.CreatedAt.IsZero())

	_, err = templates.Get(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrTemplateNotFound)
}

func TestTemplates_RegisterRejectsIncompleteBindings(t *testing.T) {
	ctx := context.Background()
	templates := newTestTemplates(t)

	testCases := []struct {
		name     string
		template *models.NodeTemplate
	}{
		{
			name:     "missing required field",
			template: &models.NodeTemplate{Code: "sms", Name: "SMS", Type: models.NodeTypeSMS, Config: map[string]any{"sms_to_template": "{{.phone}}"}},
		},
		{
			name:     "field of another type",
			template: &models.NodeTemplate{Code: "sms", Name: "SMS", Type: models.NodeTypeSMS, Config: map[string]any{"email_to_template": "x"}},
		},
		{
			name:     "unknown type",
			template: &models.NodeTemplate{Code: "push", Name: "Push", Type: models.NodeType("push")},
		},
		{
			name:     "missing code",
			template: &models.NodeTemplate{Name: "Wait", Type: models.NodeTypeDelay, Config: map[string]any{"delay_duration": "1h"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Error(t, templates.Register(ctx, tc.template))
		})
	}
}

func TestTemplates_Search(t *testing.T) {
	ctx := context.Background()
	templates := newTestTemplates(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 25 {
		err := templates.Register(ctx, &models.NodeTemplate{
			Code:      fmt.Sprintf("delay-%02d", i),
			Name:      fmt.Sprintf("Wait %d", i),
			Type:      models.NodeTypeDelay,
			Config:    map[string]any{"delay_duration": "1h"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	err := templates.Register(ctx, &models.NodeTemplate{
		Code:      "shipping-sms",
		Name:      "Order shipped",
		Type:      models.NodeTypeSMS,
		Config:    map[string]any{"sms_to_template": "{{.phone}}", "sms_body_template": "Shipped"},
		CreatedAt: base,
	})
	require.NoError(t, err)

	t.Run("default page size and newest first", func(t *testing.T) {
		result, err := templates.Search(ctx, TemplateFilter{}, Page{})
		require.NoError(t, err)
		assert.Len(t, result.Templates, persistence.DefaultPageLimit)
		assert.Equal(t, int64(26), result.TotalCount)
		assert.True(t, result.HasNextPage)
		assert.Equal(t, "delay-24", result.Templates[0].Code)
	})

	t.Run("filter by type", func(t *testing.T) {
		sms := models.NodeTypeSMS
		result, err := templates.Search(ctx, TemplateFilter{Type: &sms}, Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, result.Templates, 1)
		assert.Equal(t, "shipping-sms", result.Templates[0].Code)
		assert.False(t, result.HasNextPage)
	})

	t.Run("text matches name case-insensitively", func(t *testing.T) {
		result, err := templates.Search(ctx, TemplateFilter{Text: "SHIPPED"}, Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, result.Templates, 1)
		assert.Equal(t, "shipping-sms", result.Templates[0].Code)
	})

	t.Run("offset", func(t *testing.T) {
		result, err := templates.Search(ctx, TemplateFilter{}, Page{Limit: 10, Offset: 20})
		require.NoError(t, err)
		assert.Len(t, result.Templates, 6)
		assert.False(t, result.HasNextPage)
	})
}

func TestTemplates_Instantiate(t *testing.T) {
	ctx := context.Background()
	templates := newTestTemplates(t)

	require.NoError(t, templates.Register(ctx, &models.NodeTemplate{
		Code:   "shipping-sms",
		Name:   "Order shipped",
		Type:   models.NodeTypeSMS,
		Config: map[string]any{"sms_to_template": "{{.phone}}", "sms_body_template": "Shipped"},
	}))

	nodeType, config, err := templates.Instantiate(ctx, "shipping-sms")
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeSMS, nodeType)
	assert.Equal(t, "Shipped", config["sms_body_template"])

	config["sms_body_template"] = "changed"

	template, err := templates.Get(ctx, "shipping-sms")
	require.NoError(t, err)
	assert.Equal(t, "Shipped", template.Config["sms_body_template"])
}
