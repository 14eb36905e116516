// Package definition loads workflows and node templates from YAML documents
// and creates them through the authoring services.
package definition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/services"
	"gopkg.in/yaml.v3"
)

// ErrEmptyDocument is returned for a document without templates or workflows.
var ErrEmptyDocument = errors.New("definition document is empty")

// Document is the top level of a definition file.
type Document struct {
	Templates []*models.NodeTemplate `yaml:"templates"`
	Workflows []WorkflowDefinition   `yaml:"workflows"`
}

// WorkflowDefinition describes one workflow version with its graph. The
// first node is the entry unless Entry names another one.
type WorkflowDefinition struct {
	TenantID      string           `yaml:"tenant_id"`
	Code          string           `yaml:"code"`
	Name          string           `yaml:"name"`
	Version       int              `yaml:"version"`
	Entry         string           `yaml:"entry"`
	Owner         string           `yaml:"owner"`
	PayloadSchema map[string]any   `yaml:"payload_schema"`
	Activate      bool             `yaml:"activate"`
	Nodes         []NodeDefinition `yaml:"nodes"`
	Edges         []EdgeDefinition `yaml:"edges"`
}

type NodeDefinition struct {
	ID       string          `yaml:"id"`
	Type     models.NodeType `yaml:"type"`
	Name     string          `yaml:"name"`
	Template string          `yaml:"template"`
	Config   map[string]any  `yaml:"config"`
}

type EdgeDefinition struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Parse decodes a definition document.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}

	var doc Document

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	err := decoder.Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}

	if len(doc.Templates) == 0 && len(doc.Workflows) == 0 {
		return nil, ErrEmptyDocument
	}

	return &doc, nil
}

// Load reads a definition document from r.
func Load(r io.Reader) (*Document, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}

	return Parse(content)
}

// LoadFile reads a definition document from path.
func LoadFile(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return doc, nil
}

// TemplateRegistrar stores node templates.
type TemplateRegistrar interface {
	Register(ctx context.Context, template *models.NodeTemplate) error
}

// Importer creates the content of a document. Templates are registered
// before workflows so nodes can reference them.
type Importer struct {
	templates TemplateRegistrar
	workflows *services.Workflow
	nodes     *services.Node
	edges     *services.Edge
	logger    *slog.Logger
}

func NewImporter(
	templates TemplateRegistrar,
	workflows *services.Workflow,
	nodes *services.Node,
	edges *services.Edge,
	logger *slog.Logger,
) *Importer {
	return &Importer{
		templates: templates,
		workflows: workflows,
		nodes:     nodes,
		edges:     edges,
		logger:    logger.With("module", "definition_importer"),
	}
}

// Result lists what an import created.
type Result struct {
	Templates []*models.NodeTemplate
	Workflows []*models.Workflow
}

// Import registers every template and creates every workflow of doc. It stops
// at the first error; objects created before it are kept.
func (i *Importer) Import(ctx context.Context, doc *Document) (*Result, error) {
	result := &Result{
		Templates: make([]*models.NodeTemplate, 0, len(doc.Templates)),
		Workflows: make([]*models.Workflow, 0, len(doc.Workflows)),
	}

	for _, template := range doc.Templates {
		err := i.templates.Register(ctx, template)
		if err != nil {
			return result, err
		}

		result.Templates = append(result.Templates, template)
	}

	for _, def := range doc.Workflows {
		flow, err := i.importWorkflow(ctx, def)
		if err != nil {
			return result, fmt.Errorf("workflow %s: %w", def.Code, err)
		}

		result.Workflows = append(result.Workflows, flow)
	}

	i.logger.InfoContext(ctx, "Imported definitions", "templates", len(result.Templates), "workflows", len(result.Workflows))

	return result, nil
}

func (i *Importer) importWorkflow(ctx context.Context, def WorkflowDefinition) (*models.Workflow, error) {
	entry := def.Entry
	if entry == "" && len(def.Nodes) > 0 {
		entry = def.Nodes[0].ID
	}

	var entryNodeID *string
	if entry != "" {
		entryNodeID = &entry
	}

	flow, err := i.workflows.CreateWorkflow(ctx, services.CreateWorkflowRequest{
		TenantID:      def.TenantID,
		Code:          def.Code,
		Name:          def.Name,
		EntryNodeID:   entryNodeID,
		Version:       def.Version,
		PayloadSchema: def.PayloadSchema,
		Owner:         def.Owner,
	})
	if err != nil {
		return nil, err
	}

	for _, node := range def.Nodes {
		_, err := i.nodes.AddNode(ctx, flow.ID, services.NodeSpec{
			ID:           node.ID,
			Type:         node.Type,
			Name:         node.Name,
			TemplateCode: node.Template,
			Config:       node.Config,
		})
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.ID, err)
		}
	}

	for _, edge := range def.Edges {
		_, err := i.edges.AddEdge(ctx, flow.ID, edge.From, edge.To)
		if err != nil {
			return nil, err
		}
	}

	if def.Activate {
		return i.workflows.Activate(ctx, flow.ID)
	}

	return i.workflows.Get(ctx, flow.ID)
}
