package registry

import (
	"fmt"
	"sync"

	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/protocol"
)

// Executors maps each node type to the executor that performs it.
type Executors struct {
	mu        sync.RWMutex
	executors map[models.NodeType]protocol.NodeExecutor
}

func NewExecutors() *Executors {
	return &Executors{
		executors: make(map[models.NodeType]protocol.NodeExecutor),
	}
}

// Register installs executor for nodeType, replacing any previous one.
func (e *Executors) Register(nodeType models.NodeType, executor protocol.NodeExecutor) error {
	if !nodeType.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownNodeType, nodeType)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.executors[nodeType] = executor

	return nil
}

func (e *Executors) Get(nodeType models.NodeType) (protocol.NodeExecutor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	executor, ok := e.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("no executor registered for node type '%s'", nodeType)
	}

	return executor, nil
}

// Types lists the node types that have an executor.
func (e *Executors) Types() []models.NodeType {
	e.mu.RLock()
	defer e.mu.RUnlock()

	types := make([]models.NodeType, 0, len(e.executors))

	for _, nodeType := range models.NodeTypes() {
		if _, ok := e.executors[nodeType]; ok {
			types = append(types, nodeType)
		}
	}

	return types
}
