// FILE: lixenwraith/layersync/engine.go
package layersync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
)

// Scope is one independently managed root config.
type Scope struct {
	Name string
	Root string
	// Boundary selects the layers this scope owns. Nil means files under
	// the root config's directory.
	Boundary Boundary
}

// ScopeState is everything the engine remembers about a scope between calls.
type ScopeState struct {
	Result   *MergeResult
	Baseline map[string]Value // live entries not owned by Result
}

// scopeSlot serializes every mutating call for one scope.
type scopeSlot struct {
	scope    Scope
	capture  *CaptureStore
	sem      *semaphore.Weighted
	applying atomic.Bool // set while the engine writes to the live target

	mu    sync.RWMutex
	state ScopeState
}

func (s *scopeSlot) load() ScopeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *scopeSlot) store(st ScopeState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Engine merges layered configs into a live target and writes live edits
// back to the layers. Safe for concurrent use; calls for the same scope run
// one at a time.
type Engine struct {
	opts        Options
	store       *Store
	target      LiveTarget
	chooser     DestinationChooser
	diagnostics DiagnosticsSink
	notifier    Notifier
	logger      *log.Logger

	mu     sync.RWMutex
	scopes map[string]*scopeSlot
}

// NewEngine creates an engine. Nil collaborators other than target fall
// back to no-op implementations; prefer NewBuilder for anything non-trivial.
func NewEngine(store *Store, target LiveTarget, opts Options) (*Engine, error) {
	if target == nil {
		return nil, ErrNoTarget
	}
	if store == nil {
		store = NewDiskStore()
	}
	opts = opts.withDefaults()
	return &Engine{
		opts:        opts,
		store:       store,
		target:      target,
		chooser:     DeclineChooser,
		diagnostics: nopSink{},
		notifier:    nopSink{},
		logger:      opts.Logger,
		scopes:      make(map[string]*scopeSlot),
	}, nil
}

// Store returns the layer store used by the engine.
func (e *Engine) Store() *Store { return e.store }

// Register adds a scope. It does not touch the live target; call Rebuild.
func (e *Engine) Register(scope Scope) error {
	if scope.Name == "" {
		return fmt.Errorf("scope name must not be empty")
	}
	if scope.Root == "" {
		return fmt.Errorf("scope %q: root config path must not be empty", scope.Name)
	}
	scope.Root = filepath.Clean(scope.Root)
	if scope.Boundary == nil {
		scope.Boundary = DirBoundary(filepath.Dir(scope.Root))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.scopes[scope.Name]; exists {
		return fmt.Errorf("%w: %s", ErrScopeExists, scope.Name)
	}
	e.scopes[scope.Name] = &scopeSlot{
		scope:   scope,
		capture: NewCaptureStore(e.store, scope.Root, e.opts.CaptureFileName),
		sem:     semaphore.NewWeighted(1),
	}
	e.logger.Debug("scope registered", "scope", scope.Name, "root", scope.Root)
	return nil
}

// Unregister drops a scope and its in-memory state. Files and the live
// target are left as they are.
func (e *Engine) Unregister(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.scopes[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownScope, name)
	}
	delete(e.scopes, name)
	return nil
}

// Scopes lists registered scope names in lexical order.
func (e *Engine) Scopes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.scopes))
	for n := range e.scopes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Scope returns the registered definition of a scope.
func (e *Engine) Scope(name string) (Scope, error) {
	slot, err := e.slot(name)
	if err != nil {
		return Scope{}, err
	}
	return slot.scope, nil
}

// State returns the last committed state of a scope.
func (e *Engine) State(name string) (ScopeState, error) {
	slot, err := e.slot(name)
	if err != nil {
		return ScopeState{}, err
	}
	return slot.load(), nil
}

// CapturePath returns the capture file location for a scope.
func (e *Engine) CapturePath(name string) (string, error) {
	slot, err := e.slot(name)
	if err != nil {
		return "", err
	}
	return slot.capture.Path(), nil
}

func (e *Engine) slot(name string) (*scopeSlot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	slot, ok := e.scopes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScope, name)
	}
	return slot, nil
}

// Rebuild re-reads the scope's layers, pushes the merged settings to the
// live target and snapshots the external baseline. A resolve or merge
// failure leaves the previous state in place.
func (e *Engine) Rebuild(ctx context.Context, name string) (*MergeResult, error) {
	slot, err := e.slot(name)
	if err != nil {
		return nil, err
	}
	if err := slot.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer slot.sem.Release(1)

	st, err := e.rebuild(ctx, slot, slot.load())
	slot.store(st)
	return st.Result, err
}

func (e *Engine) rebuild(ctx context.Context, slot *scopeSlot, prev ScopeState) (ScopeState, error) {
	name := slot.scope.Name
	res, err := e.merge(slot.scope)
	if err != nil {
		e.logger.Error("merge failed", "scope", name, "err", err)
		return prev, err
	}
	e.diagnostics.Report(name, res.Conflicts)

	if err := e.push(ctx, slot, prev.Result, res); err != nil {
		e.logger.Error("failed to push merged settings", "scope", name, "err", err)
		return prev, fmt.Errorf("scope %s: push to live target: %w", name, err)
	}

	next := ScopeState{Result: res}
	live, err := e.target.ReadAll(ctx, name)
	if err != nil {
		next.Baseline = externalOf(prev.Baseline, res)
		return next, fmt.Errorf("scope %s: read live target: %w", name, err)
	}
	next.Baseline = externalOf(live, res)

	e.logger.Info("scope rebuilt", "scope", name,
		"layers", len(res.Chain.Files), "keys", len(res.Settings), "conflicts", len(res.Conflicts))
	return next, nil
}

// Prime merges the scope's layers and adopts the result as the reference
// state without writing to the live target. The baseline starts empty, so
// every unowned live key is treated as new by the next Reconcile. Used by
// one-shot tools that reconcile a live file synced in an earlier process.
func (e *Engine) Prime(ctx context.Context, name string) (*MergeResult, error) {
	slot, err := e.slot(name)
	if err != nil {
		return nil, err
	}
	if err := slot.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer slot.sem.Release(1)

	res, err := e.merge(slot.scope)
	if err != nil {
		return nil, err
	}
	e.diagnostics.Report(name, res.Conflicts)
	slot.store(ScopeState{Result: res, Baseline: map[string]Value{}})
	return res, nil
}

// merge resolves and folds the scope's chain from disk.
func (e *Engine) merge(scope Scope) (*MergeResult, error) {
	chain, err := ResolveWithDepth(scope.Root, e.store.Loader(), e.opts.MaxChainDepth)
	if err != nil {
		return nil, err
	}
	return Merge(chain), nil
}

// push writes res to the live target and unsets keys prev owned that res no
// longer does. Live-change notifications are suppressed meanwhile.
func (e *Engine) push(ctx context.Context, slot *scopeSlot, prev, res *MergeResult) error {
	slot.applying.Store(true)
	defer slot.applying.Store(false)

	name := slot.scope.Name
	var errs []error
	if err := e.target.SetMany(ctx, name, res.Entries()); err != nil {
		return err
	}
	if prev != nil {
		for _, key := range prev.OwnedKeys() {
			if res.Owns(key) {
				continue
			}
			if err := e.target.Unset(ctx, name, key); err != nil {
				errs = append(errs, fmt.Errorf("unset %q: %w", key, err))
			}
		}
	}
	return errors.Join(errs...)
}

// revert restores one live key to its merged value.
func (e *Engine) revert(ctx context.Context, slot *scopeSlot, key string, v Value) error {
	slot.applying.Store(true)
	defer slot.applying.Store(false)
	return e.target.SetMany(ctx, slot.scope.Name, []Entry{{Key: key, Value: v}})
}

// Reconcile classifies live drift for the scope and writes it back into
// the layers. Per-file write failures are collected in the report and do
// not fail the call.
func (e *Engine) Reconcile(ctx context.Context, name string) (*Report, error) {
	slot, err := e.slot(name)
	if err != nil {
		return nil, err
	}
	if err := slot.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer slot.sem.Release(1)

	st, report, err := e.reconcile(ctx, slot, slot.load())
	slot.store(st)
	return report, err
}

// NotifyLiveChange is the host's hook for "the live state may have
// changed". Notifications caused by the engine's own writes are dropped.
func (e *Engine) NotifyLiveChange(ctx context.Context, name string) (*Report, error) {
	slot, err := e.slot(name)
	if err != nil {
		return nil, err
	}
	// checked before queueing: a push holding the slot would otherwise
	// be followed by a pass over its own writes
	if slot.applying.Load() {
		return &Report{Scope: name, Outcome: OutcomeSuppressed}, nil
	}
	return e.Reconcile(ctx, name)
}
