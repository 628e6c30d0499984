package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultSchema describes the company database the agent queries
const DefaultSchema = `
user_role_type: 'Admin', 'Manager', 'Employee'
project_status_type: 'Planning', 'In Progress', 'Completed', 'Blocked', 'Cancelled'
task_priority_type: 'High', 'Medium', 'Low'
task_status_type: 'To Do', 'In Progress', 'Review', 'Done'
asset_status_type: 'In Stock', 'In Use', 'Maintenance', 'Missing', 'Retired'

users (id, email, full_name, user_role, is_active)
clients (id, name, contact_email, phone)
assets (id, asset_name, serial_number, location, purchase_value, asset_status)
projects (id, client_id, project_manager_id, project_name, description, budget_hours, start_date, due_date, project_status)
tasks (id, project_id, assigned_user_id, task_name, estimated_hours, priority, task_status)
asset_allocations (id, asset_id, task_id, quantity, allocated_from, allocated_until)
`

// SchemaSource supplies the schema description embedded in the instructions
type SchemaSource interface {
	Schema() string
}

// StaticSchema is a fixed schema description
type StaticSchema string

func (s StaticSchema) Schema() string {
	return string(s)
}

// FileSchema reads the schema description from a file and can follow
// changes to it.
type FileSchema struct {
	path   string
	logger *log.Logger

	mu   sync.RWMutex
	text string
}

// LoadFileSchema reads path once
func LoadFileSchema(path string, logger *log.Logger) (*FileSchema, error) {
	if logger == nil {
		logger = log.Default()
	}
	f := &FileSchema{path: path, logger: logger}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileSchema) Schema() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.text
}

func (f *FileSchema) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fmt.Errorf("schema file %s is empty", f.path)
	}
	f.mu.Lock()
	f.text = "\n" + text + "\n"
	f.mu.Unlock()
	return nil
}

// Watch reloads the schema whenever the file is written or replaced, until
// ctx is done. A failed reload keeps the previous description.
func (f *FileSchema) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory so editors that replace the file are seen too.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("failed to watch schema file %s: %w", f.path, err)
	}

	target := filepath.Clean(f.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if err := f.reload(); err != nil {
					f.logger.Warn("Schema reload failed", "path", f.path, "err", err)
					continue
				}
				f.logger.Info("Schema description reloaded", "path", f.path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("Schema watcher error", "err", err)
		case <-ctx.Done():
			return nil
		}
	}
}
