package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/google/uuid"
)

// TemplateRepository handles node template database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

func (tr *TemplateRepository) Save(ctx context.Context, template *models.NodeTemplate) error {
	if template.ID == "" {
		template.ID = uuid.New().String()
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}

	config := template.Config
	if config == nil {
		config = map[string]any{}
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal template config: %w", err)
	}

	err = tr.db.QueryRowContext(ctx, `
		INSERT INTO node_templates (id, code, name, node_type, description, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			node_type = EXCLUDED.node_type,
			description = EXCLUDED.description,
			config = EXCLUDED.config
		RETURNING id, created_at
	`,
		template.ID,
		template.Code,
		template.Name,
		template.Type,
		template.Description,
		configJSON,
		template.CreatedAt,
	).Scan(&template.ID, &template.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save template %s: %w", template.Code, err)
	}

	return nil
}

func (tr *TemplateRepository) GetByCode(ctx context.Context, code string) (*models.NodeTemplate, error) {
	row := tr.db.QueryRowContext(ctx, `
		SELECT id, code, name, node_type, description, config, created_at
		FROM node_templates
		WHERE code = $1
	`, code)

	template, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("template %s: %w", code, persistence.ErrTemplateNotFound)
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	return template, nil
}

func (tr *TemplateRepository) Search(ctx context.Context, opts persistence.TemplateSearchOptions) (*persistence.TemplateListResult, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 4)

	if opts.Type != nil {
		args = append(args, *opts.Type)
		conditions = append(conditions, "node_type = $"+strconv.Itoa(len(args)))
	}

	if text := strings.TrimSpace(opts.Text); text != "" {
		args = append(args, "%"+escapeLike(text)+"%")
		placeholder := "$" + strconv.Itoa(len(args))
		conditions = append(conditions, "(code ILIKE "+placeholder+" OR name ILIKE "+placeholder+")")
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64

	err := tr.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM node_templates "+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count templates: %w", err)
	}

	limit := persistence.NormalizeLimit(opts.Limit)
	offset := max(opts.Offset, 0)

	args = append(args, limit, offset)
	query := `
		SELECT id, code, name, node_type, description, config, created_at
		FROM node_templates ` + where + `
		ORDER BY created_at DESC, code
		LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := tr.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer closeRows(ctx, tr.logger, rows)

	templates := make([]*models.NodeTemplate, 0, limit)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return &persistence.TemplateListResult{
		Templates:   templates,
		TotalCount:  total,
		HasNextPage: int64(offset+len(templates)) < total,
	}, nil
}

func scanTemplate(scanner rowScanner) (*models.NodeTemplate, error) {
	var (
		template   models.NodeTemplate
		configJSON []byte
	)

	err := scanner.Scan(
		&template.ID,
		&template.Code,
		&template.Name,
		&template.Type,
		&template.Description,
		&configJSON,
		&template.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(configJSON, &template.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal template config: %w", err)
	}

	return &template, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(text string) string {
	return likeEscaper.Replace(text)
}
