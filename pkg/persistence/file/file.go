// Package file provides file-based persistence for workflows, templates and trigger instances.
//
// Every repository shares one mutex, which makes create-if-absent and
// compare-and-swap atomic within a single process. Use the postgresql
// package when several dispatcher processes share a store.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/notiflow/pkg/persistence"
)

const (
	workflowsDir = "workflows"
	templatesDir = "templates"
	instancesDir = "trigger_instances"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root         string
	mu           sync.RWMutex
	workflowRepo *WorkflowRepository
	nodeRepo     *NodeRepository
	edgeRepo     *EdgeRepository
	templateRepo *TemplateRepository
	instanceRepo *TriggerInstanceRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflowRepo = &WorkflowRepository{store: p}
	p.nodeRepo = &NodeRepository{store: p}
	p.edgeRepo = &EdgeRepository{store: p}
	p.templateRepo = &TemplateRepository{store: p}
	p.instanceRepo = &TriggerInstanceRepository{store: p}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) NodeRepository() persistence.NodeRepository {
	return fp.nodeRepo
}

func (fp *Persistence) EdgeRepository() persistence.EdgeRepository {
	return fp.edgeRepo
}

func (fp *Persistence) TemplateRepository() persistence.TemplateRepository {
	return fp.templateRepo
}

func (fp *Persistence) TriggerInstanceRepository() persistence.TriggerInstanceRepository {
	return fp.instanceRepo
}

// validateID rejects ids that could escape the storage directory.
func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("id %q contains invalid characters", id)
	}

	return nil
}

func (fp *Persistence) path(dir, id string) string {
	return filepath.Join(fp.root, dir, id+".json")
}

// readJSON loads dir/id.json into target. It returns fs.ErrNotExist when the file is missing.
func (fp *Persistence) readJSON(dir, id string, target any) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	body, err := os.ReadFile(fp.path(dir, id))
	if err != nil {
		return err
	}

	err = json.Unmarshal(body, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return nil
}

// writeJSON stores value in dir/id.json through a temporary file and rename.
func (fp *Persistence) writeJSON(dir, id string, value any) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Join(fp.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	target := fp.path(dir, id)
	tmp := target + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	err = os.Rename(tmp, target)
	if err != nil {
		return fmt.Errorf("failed to commit %s/%s: %w", dir, id, err)
	}

	return nil
}

// listIDs returns the ids stored in dir.
func (fp *Persistence) listIDs(dir string) ([]string, error) {
	files, err := fs.Glob(os.DirFS(filepath.Join(fp.root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
