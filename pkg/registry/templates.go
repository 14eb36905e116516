// Package registry holds the node template catalog and the node executors.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// TemplateFilter narrows a catalog search.
type TemplateFilter struct {
	Type *models.NodeType
	Text string
}

// Page selects a window of results.
type Page struct {
	Limit  int
	Offset int
}

// Templates is the read side of the node template catalog, plus the seeding
// entry point used by the import command.
type Templates struct {
	repo     persistence.TemplateRepository
	logger   *slog.Logger
	validate *validator.Validate
}

func NewTemplates(repo persistence.TemplateRepository, logger *slog.Logger) *Templates {
	return &Templates{
		repo:     repo,
		logger:   logger.With("module", "template_registry"),
		validate: validator.New(),
	}
}

// Get returns the template with the given code.
func (t *Templates) Get(ctx context.Context, code string) (*models.NodeTemplate, error) {
	template, err := t.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get template %s: %w", code, err)
	}

	return template, nil
}

// Search lists templates newest first.
func (t *Templates) Search(ctx context.Context, filter TemplateFilter, page Page) (*persistence.TemplateListResult, error) {
	offset := max(page.Offset, 0)

	result, err := t.repo.Search(ctx, persistence.TemplateSearchOptions{
		Type:   filter.Type,
		Text:   filter.Text,
		Limit:  persistence.NormalizeLimit(page.Limit),
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search templates: %w", err)
	}

	return result, nil
}

// Register inserts or replaces a template after checking its bindings are
// complete for its type.
func (t *Templates) Register(ctx context.Context, template *models.NodeTemplate) error {
	err := t.validate.Struct(template)
	if err != nil {
		return fmt.Errorf("invalid template %s: %w", template.Code, err)
	}

	bindings, err := models.DecodeBindings(template.Type, template.Config)
	if err != nil {
		return fmt.Errorf("invalid template %s: %w", template.Code, err)
	}

	err = t.validate.Struct(bindings)
	if err != nil {
		return fmt.Errorf("invalid template %s bindings: %w", template.Code, err)
	}

	if template.ID == "" {
		template.ID = uuid.NewString()
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}

	err = t.repo.Save(ctx, template)
	if err != nil {
		return fmt.Errorf("failed to save template %s: %w", template.Code, err)
	}

	t.logger.InfoContext(ctx, "Registered node template", "code", template.Code, "type", template.Type)

	return nil
}

// Instantiate returns the node type and a copy of the default config of a
// template, ready to be merged with node-level overrides.
func (t *Templates) Instantiate(ctx context.Context, code string) (models.NodeType, map[string]any, error) {
	template, err := t.Get(ctx, code)
	if err != nil {
		return "", nil, err
	}

	return template.Type, models.MergeConfig(template.Config, nil), nil
}
