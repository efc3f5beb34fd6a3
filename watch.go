// FILE: lixenwraith/layersync/watch.go
package layersync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// WatchKind tells which side of a scope changed on disk.
type WatchKind int

const (
	WatchLayers WatchKind = iota // a layer in the scope's chain
	WatchLive                    // the scope's live file
)

func (k WatchKind) String() string {
	if k == WatchLive {
		return "live"
	}
	return "layers"
}

// WatchEvent is delivered to subscribers after the watcher acted on a change.
type WatchEvent struct {
	Scope  string
	Kind   WatchKind
	Result *MergeResult // set after a rebuild
	Report *Report      // set after a reconcile
	Err    error
}

// WatchOptions configures file watching behavior
type WatchOptions struct {
	// Debounce is the quiet period before a burst of events is acted on
	Debounce time.Duration

	// ReloadTimeout bounds one rebuild or reconcile
	ReloadTimeout time.Duration

	// MaxWatchers limits concurrent subscriber channels
	MaxWatchers int
}

// DefaultWatchOptions returns the watcher defaults
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		Debounce:      DefaultDebounce,
		ReloadTimeout: DefaultReloadTimeout,
		MaxWatchers:   DefaultMaxWatchers,
	}
}

type watchTarget struct {
	scope string
	kind  WatchKind
}

// Watcher rebuilds scopes when their layers change and reconciles them when
// their live file changes. It needs a store backed by the OS filesystem.
type Watcher struct {
	engine *Engine
	opts   WatchOptions
	logger *log.Logger
	fsw    *fsnotify.Watcher

	mu     sync.Mutex
	files  map[string]map[watchTarget]bool // watched path -> interested scopes
	live   map[string]string               // scope -> live file
	dirs   map[string]bool
	hashes map[string]string
	timers map[watchTarget]*time.Timer

	subMu     sync.RWMutex
	subs      map[int64]chan WatchEvent
	subID     atomic.Int64
	watching  atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	inFlight  sync.WaitGroup
	closeOnce sync.Once
}

// NewWatcher creates a watcher over the engine's registered scopes.
func NewWatcher(e *Engine, opts WatchOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = e.opts.Debounce
	}
	if opts.ReloadTimeout <= 0 {
		opts.ReloadTimeout = DefaultReloadTimeout
	}
	if opts.MaxWatchers <= 0 {
		opts.MaxWatchers = DefaultMaxWatchers
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		engine: e,
		opts:   opts,
		logger: e.logger.WithPrefix("watch"),
		fsw:    fsw,
		files:  make(map[string]map[watchTarget]bool),
		live:   make(map[string]string),
		dirs:   make(map[string]bool),
		hashes: make(map[string]string),
		timers: make(map[watchTarget]*time.Timer),
		subs:   make(map[int64]chan WatchEvent),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// WatchLive adds a live file for scope. Changes trigger NotifyLiveChange.
func (w *Watcher) WatchLive(scope, path string) error {
	if _, err := w.engine.slot(scope); err != nil {
		return err
	}
	path = absClean(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if old, ok := w.live[scope]; ok {
		w.forget(old, watchTarget{scope, WatchLive})
	}
	w.live[scope] = path
	return w.track(path, watchTarget{scope, WatchLive})
}

// Start arms watches for every registered scope and processes events until
// ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.watching.CompareAndSwap(false, true) {
		return fmt.Errorf("watcher already running")
	}
	defer w.watching.Store(false)

	for _, name := range w.engine.Scopes() {
		if err := w.rearm(name); err != nil {
			w.logger.Warn("failed to watch scope", "scope", name, "err", err)
		}
	}
	w.logger.Info("file watcher started", "scopes", len(w.engine.Scopes()))

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-w.ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("fsnotify error", "err", err)
		}
	}
}

// Stop terminates the watcher and closes subscriber channels.
func (w *Watcher) Stop() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()

		w.mu.Lock()
		for key, t := range w.timers {
			t.Stop()
			delete(w.timers, key)
		}
		w.mu.Unlock()

		w.inFlight.Wait()
		if cerr := w.fsw.Close(); cerr != nil {
			err = fmt.Errorf("close fsnotify watcher: %w", cerr)
		}

		w.subMu.Lock()
		for id, ch := range w.subs {
			close(ch)
			delete(w.subs, id)
		}
		w.subMu.Unlock()
		w.logger.Info("file watcher stopped")
	})
	return err
}

// IsWatching reports whether Start is running.
func (w *Watcher) IsWatching() bool { return w.watching.Load() }

// Subscribe returns a channel of watch events. Events are dropped for
// subscribers that do not keep up.
func (w *Watcher) Subscribe() <-chan WatchEvent {
	w.subMu.Lock()
	defer w.subMu.Unlock()

	if len(w.subs) >= w.opts.MaxWatchers || w.ctx.Err() != nil {
		ch := make(chan WatchEvent)
		close(ch)
		return ch
	}
	ch := make(chan WatchEvent, watchChannelBuffer)
	w.subs[w.subID.Add(1)] = ch
	return ch
}

// WatcherCount returns the number of active subscriber channels
func (w *Watcher) WatcherCount() int {
	w.subMu.RLock()
	defer w.subMu.RUnlock()
	return len(w.subs)
}

func (w *Watcher) emit(ev WatchEvent) {
	w.subMu.RLock()
	defer w.subMu.RUnlock()
	for _, ch := range w.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// rearm replaces the layer watch list of scope with its current chain, the
// root and the capture file. The chain changes whenever extends does.
func (w *Watcher) rearm(scope string) error {
	slot, err := w.engine.slot(scope)
	if err != nil {
		return err
	}
	paths := []string{slot.scope.Root, slot.capture.Path()}
	if st := slot.load(); st.Result != nil {
		paths = append(paths, st.Result.Chain.Paths()...)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	target := watchTarget{scope, WatchLayers}
	for path := range w.files {
		w.forget(path, target)
	}
	for _, p := range paths {
		if err := w.track(absClean(p), target); err != nil {
			return err
		}
	}
	return nil
}

// track must be called with w.mu held.
func (w *Watcher) track(path string, target watchTarget) error {
	dir := filepath.Dir(path)
	if !w.dirs[dir] {
		// directories survive atomic replace-by-rename, files do not
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch directory '%s': %w", dir, err)
		}
		w.dirs[dir] = true
		w.logger.Debug("watching directory", "path", dir)
	}
	if w.files[path] == nil {
		w.files[path] = make(map[watchTarget]bool)
		if h, err := w.hash(path); err == nil {
			w.hashes[path] = h
		}
	}
	w.files[path][target] = true
	return nil
}

// forget must be called with w.mu held.
func (w *Watcher) forget(path string, target watchTarget) {
	set := w.files[path]
	if set == nil {
		return
	}
	delete(set, target)
	if len(set) == 0 {
		delete(w.files, path)
		delete(w.hashes, path)
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	path := absClean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	targets, ok := w.files[path]
	if !ok {
		return
	}

	h, err := w.hash(path)
	if err != nil {
		h = ""
	}
	if prev, seen := w.hashes[path]; seen && prev == h {
		return
	}
	w.hashes[path] = h

	w.logger.Debug("fs event", "op", event.Op.String(), "path", path)
	for target := range targets {
		w.trigger(target)
	}
}

// trigger (re)starts the debounce timer for target. Must hold w.mu.
func (w *Watcher) trigger(target watchTarget) {
	if t, ok := w.timers[target]; ok {
		t.Stop()
	}
	w.timers[target] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, target)
		if w.ctx.Err() != nil {
			w.mu.Unlock()
			return
		}
		w.inFlight.Add(1)
		w.mu.Unlock()

		defer w.inFlight.Done()
		w.perform(target)
	})
}

func (w *Watcher) perform(target watchTarget) {
	ctx, cancel := context.WithTimeout(w.ctx, w.opts.ReloadTimeout)
	defer cancel()

	ev := WatchEvent{Scope: target.scope, Kind: target.kind}
	switch target.kind {
	case WatchLayers:
		ev.Result, ev.Err = w.engine.Rebuild(ctx, target.scope)
		if err := w.rearm(target.scope); err != nil {
			w.logger.Warn("failed to re-arm scope", "scope", target.scope, "err", err)
		}
	case WatchLive:
		ev.Report, ev.Err = w.engine.NotifyLiveChange(ctx, target.scope)
		if ev.Err == nil && ev.Report != nil && ev.Report.Writes() > 0 {
			w.logger.Info("live edits written back", "scope", target.scope, "writes", ev.Report.Writes())
		}
	}
	if ev.Err != nil {
		w.logger.Error("watch action failed", "scope", target.scope, "kind", target.kind, "err", ev.Err)
	}
	w.emit(ev)
}

// hash fingerprints a file so touch-only and self-identical writes are ignored.
// A missing file hashes to the empty string.
func (w *Watcher) hash(path string) (string, error) {
	data, err := w.engine.store.ReadFile(path)
	if err != nil {
		if isNotExist(err) {
			return "", nil
		}
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func absClean(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
