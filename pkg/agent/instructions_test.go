package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstructionsRender(t *testing.T) {
	i := Instructions{Now: fixedNow}

	out := i.Render([]string{"run_database_query", "web_search"})
	assert.Contains(t, out, "Role: You are an assistant agent with access to a Company Database and the Internet.")
	assert.Contains(t, out, "Current date: Tuesday, June 03, 2025 at 02:05 PM")
	assert.Contains(t, out, "asset_allocations (id, asset_id, task_id, quantity, allocated_from, allocated_until)")
	assert.Contains(t, out, "1. Use 'run_database_query' for internal data.")
	assert.Contains(t, out, "2. Use 'web_search' for external data.")
	assert.Contains(t, out, "3. Always return a final response to the user.")
}

func TestInstructionsOmitUnregisteredTools(t *testing.T) {
	i := Instructions{Now: fixedNow, Schema: StaticSchema("things (id)")}

	out := i.Render([]string{"run_database_query"})
	assert.NotContains(t, out, "web_search")
	assert.Contains(t, out, "Database Schema: things (id)")
	assert.Contains(t, out, "2. Always return a final response to the user.")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(&MockTool{name: "web_search"}, &MockTool{name: "run_database_query"})

	assert.Equal(t, []string{"run_database_query", "web_search"}, r.Names())
	assert.True(t, r.Has("web_search"))
	assert.False(t, r.Has("nope"))
	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "run_database_query", defs[0].Function.Name)
}

func TestFileSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.txt")
	require.NoError(t, os.WriteFile(path, []byte("widgets (id, name)\n"), 0o644))

	schema, err := LoadFileSchema(path, log.New(os.Stderr))
	require.NoError(t, err)
	assert.Equal(t, "\nwidgets (id, name)\n", schema.Schema())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- schema.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("gadgets (id)\n"), 0o644))

	assert.Eventually(t, func() bool {
		return schema.Schema() == "\ngadgets (id)\n"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLoadFileSchemaErrors(t *testing.T) {
	_, err := LoadFileSchema(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o644))
	_, err = LoadFileSchema(empty, nil)
	assert.Error(t, err)
}
