// FILE: lixenwraith/layersync/helpers_test.go
package layersync

import (
	"context"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// memTarget is an in-memory LiveTarget.
type memTarget struct {
	mu     sync.Mutex
	values map[string]Value
	setN   int
	unsetN int
	onSet  func() // runs inside SetMany, outside the lock
	setErr error
}

func newMemTarget() *memTarget {
	return &memTarget{values: make(map[string]Value)}
}

func (m *memTarget) SetMany(_ context.Context, _ string, entries []Entry) error {
	if m.onSet != nil {
		m.onSet()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.setN++
	for _, e := range entries {
		m.values[e.Key] = e.Value
	}
	return nil
}

func (m *memTarget) Unset(_ context.Context, _ string, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsetN++
	delete(m.values, key)
	return nil
}

func (m *memTarget) ReadAll(context.Context, string) (map[string]Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Assign(m.values), nil
}

func (m *memTarget) set(key string, v Value) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = v
}

func (m *memTarget) get(key string) (Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// recorder collects notifier and diagnostics calls.
type recorder struct {
	mu        sync.Mutex
	blocked   []BlockedRemoval
	failures  []*WriteError
	conflicts map[string][]Conflict
}

func (r *recorder) Report(scope string, conflicts []Conflict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflicts == nil {
		r.conflicts = make(map[string][]Conflict)
	}
	r.conflicts[scope] = conflicts
}

func (r *recorder) WarnBlockedRemoval(_ context.Context, b BlockedRemoval) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked = append(r.blocked, b)
}

func (r *recorder) WarnWriteFailure(_ context.Context, err *WriteError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

// writeLayers seeds layer files into the store.
func writeLayers(t *testing.T, store *Store, files map[string]string) {
	t.Helper()
	for path, content := range files {
		require.NoError(t, store.WriteFile(path, []byte(content)))
	}
}

// readLayer parses one layer back from the store.
func readLayer(t *testing.T, store *Store, path string) *ConfigFile {
	t.Helper()
	f, err := store.LoadConfigFile(path)
	require.NoError(t, err)
	return f
}

// testEngine wires an engine over an in-memory store with one scope "ws"
// rooted at root. Files under /ws are owned.
func testEngine(t *testing.T, files map[string]string, root string) (*Engine, *Store, *memTarget, *recorder) {
	t.Helper()
	store := NewMemStore()
	writeLayers(t, store, files)
	target := newMemTarget()
	rec := &recorder{}
	e, err := NewBuilder().
		WithStore(store).
		WithTarget(target).
		WithDiagnostics(rec).
		WithNotifier(rec).
		WithScope(Scope{Name: "ws", Root: root, Boundary: DirBoundary("/ws")}).
		Build()
	require.NoError(t, err)
	return e, store, target, rec
}

