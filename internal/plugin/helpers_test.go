package plugin

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

// recorder collects initializer invocations in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
	args  [][]any
}

func (r *recorder) record(name string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	r.args = append(r.args, args)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// init returns an initializer that records name, runs fn if given, and
// signals done.
func (r *recorder) init(name string, fn func(imports *Imports)) Initializer {
	return func(ctx context.Context, host Host, imports *Imports, done Done, args ...any) error {
		r.record(name, args)
		if fn != nil {
			fn(imports)
		}
		done()
		return nil
	}
}

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// makePlugin creates base/name with a package.json listing requires, and
// returns its canonical path.
func makePlugin(t *testing.T, base, name string, requires ...string) string {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if len(requires) > 0 {
		data, err := json.Marshal(map[string]any{
			"name":   name,
			"plugin": map[string]any{"requires": requires},
		})
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		writeFile(t, filepath.Join(dir, ManifestJSON), string(data))
	}
	return canonicalPath(t, dir)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func canonicalPath(t *testing.T, path string) string {
	t.Helper()
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("EvalSymlinks(%s) error = %v", path, err)
	}
	abs, err := filepath.Abs(real)
	if err != nil {
		t.Fatalf("Abs(%s) error = %v", real, err)
	}
	return abs
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
