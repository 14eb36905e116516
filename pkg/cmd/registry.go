// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/notiflow/pkg/definition"
	"github.com/dukex/notiflow/pkg/eventbus"
	"github.com/dukex/notiflow/pkg/execution"
	"github.com/dukex/notiflow/pkg/locker"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/nodes/logdriver"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/dukex/notiflow/pkg/registry"
	"github.com/dukex/notiflow/pkg/services"
)

// NewExecutors registers the built-in executor of every node type.
func NewExecutors(logger *slog.Logger) (*registry.Executors, error) {
	executors := registry.NewExecutors()

	err := executors.Register(models.NodeTypeEmail, logdriver.NewEmail(logger))
	if err != nil {
		return nil, err
	}

	err = executors.Register(models.NodeTypeSMS, logdriver.NewSMS(logger))
	if err != nil {
		return nil, err
	}

	err = executors.Register(models.NodeTypeDelay, logdriver.NewDelay(logger))
	if err != nil {
		return nil, err
	}

	return executors, nil
}

// NewLocker returns a Redis locker when redisURL is set and an in-process
// locker otherwise. The returned close function is never nil.
func NewLocker(ctx context.Context, redisURL string, ttl time.Duration, logger *slog.Logger) (locker.Locker, func() error, error) {
	if redisURL == "" {
		return locker.NewLocal(), func() error { return nil }, nil
	}

	redisLocker, err := locker.NewRedisFromURL(ctx, redisURL, logger, ttl)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Redis locker: %w", err)
	}

	return redisLocker, redisLocker.Close, nil
}

// Services groups the authoring and submission services over one store.
type Services struct {
	Templates *registry.Templates
	Workflows *services.Workflow
	Nodes     *services.Node
	Edges     *services.Edge
	Triggers  *services.Trigger
	Importer  *definition.Importer
}

func NewServices(
	store persistence.Persistence,
	lock locker.Locker,
	machine *execution.Machine,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Services {
	templates := registry.NewTemplates(store.TemplateRepository(), logger)
	workflows := services.NewWorkflow(store, logger)
	nodes := services.NewNode(store, templates, lock, logger)
	edges := services.NewEdge(store, lock, logger)

	return &Services{
		Templates: templates,
		Workflows: workflows,
		Nodes:     nodes,
		Edges:     edges,
		Triggers:  services.NewTrigger(store, machine, publisher, logger),
		Importer:  definition.NewImporter(templates, workflows, nodes, edges, logger),
	}
}
