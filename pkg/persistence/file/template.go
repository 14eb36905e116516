package file

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/google/uuid"
)

// TemplateRepository stores node templates keyed by code.
type TemplateRepository struct {
	store *Persistence
}

func (tr *TemplateRepository) Save(_ context.Context, template *models.NodeTemplate) error {
	tr.store.mu.Lock()
	defer tr.store.mu.Unlock()

	var existing models.NodeTemplate

	err := tr.store.readJSON(templatesDir, template.Code, &existing)

	switch {
	case err == nil:
		template.ID = existing.ID
		template.CreatedAt = existing.CreatedAt
	case isNotExist(err):
		if template.ID == "" {
			template.ID = uuid.New().String()
		}

		if template.CreatedAt.IsZero() {
			template.CreatedAt = time.Now().UTC()
		}
	default:
		return fmt.Errorf("failed to read template %s: %w", template.Code, err)
	}

	return tr.store.writeJSON(templatesDir, template.Code, template)
}

func (tr *TemplateRepository) GetByCode(_ context.Context, code string) (*models.NodeTemplate, error) {
	tr.store.mu.RLock()
	defer tr.store.mu.RUnlock()

	var template models.NodeTemplate

	err := tr.store.readJSON(templatesDir, code, &template)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("template %s: %w", code, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to read template %s: %w", code, err)
	}

	return &template, nil
}

// Search filters templates in memory, newest first.
func (tr *TemplateRepository) Search(_ context.Context, opts persistence.TemplateSearchOptions) (*persistence.TemplateListResult, error) {
	tr.store.mu.RLock()
	defer tr.store.mu.RUnlock()

	codes, err := tr.store.listIDs(templatesDir)
	if err != nil {
		return nil, err
	}

	text := strings.ToLower(strings.TrimSpace(opts.Text))
	matches := make([]*models.NodeTemplate, 0, len(codes))

	for _, code := range codes {
		var template models.NodeTemplate

		err := tr.store.readJSON(templatesDir, code, &template)
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", code, err)
		}

		if opts.Type != nil && template.Type != *opts.Type {
			continue
		}

		if text != "" &&
			!strings.Contains(strings.ToLower(template.Code), text) &&
			!strings.Contains(strings.ToLower(template.Name), text) {
			continue
		}

		matches = append(matches, &template)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].Code < matches[j].Code
		}

		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	limit := persistence.NormalizeLimit(opts.Limit)
	offset := max(opts.Offset, 0)
	total := len(matches)

	start := min(offset, total)
	end := min(start+limit, total)

	return &persistence.TemplateListResult{
		Templates:   matches[start:end],
		TotalCount:  int64(total),
		HasNextPage: end < total,
	}, nil
}
