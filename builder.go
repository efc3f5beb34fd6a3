// File: lixenwraith/layersync/builder.go
package layersync

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// Builder provides a fluent interface for assembling an Engine
type Builder struct {
	store       *Store
	target      LiveTarget
	chooser     DestinationChooser
	diagnostics DiagnosticsSink
	notifier    Notifier
	opts        Options
	optsFile    string
	scopes      []Scope
	err         error
}

// NewBuilder creates a new engine builder
func NewBuilder() *Builder {
	return &Builder{
		opts: DefaultOptions(),
	}
}

// WithStore sets the layer store. Defaults to the OS filesystem.
func (b *Builder) WithStore(store *Store) *Builder {
	b.store = store
	return b
}

// WithTarget sets the live target. Required.
func (b *Builder) WithTarget(target LiveTarget) *Builder {
	b.target = target
	return b
}

// WithChooser sets the capture destination chooser. Defaults to declining.
func (b *Builder) WithChooser(chooser DestinationChooser) *Builder {
	b.chooser = chooser
	return b
}

// WithDiagnostics sets the conflict sink
func (b *Builder) WithDiagnostics(sink DiagnosticsSink) *Builder {
	b.diagnostics = sink
	return b
}

// WithNotifier sets the warning sink
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithLogger sets the engine logger
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.opts.Logger = logger
	return b
}

// WithOptions replaces all options. A logger already set is kept when
// opts carries none.
func (b *Builder) WithOptions(opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = b.opts.Logger
	}
	b.opts = opts
	return b
}

// WithOptionsFile loads options from a file at Build time, after the store is known
func (b *Builder) WithOptionsFile(path string) *Builder {
	b.optsFile = path
	return b
}

// WithCaptureFileName overrides the reserved capture file name
func (b *Builder) WithCaptureFileName(name string) *Builder {
	if name == "" {
		b.err = fmt.Errorf("capture file name must not be empty")
		return b
	}
	b.opts.CaptureFileName = name
	return b
}

// WithScope registers a scope on the built engine
func (b *Builder) WithScope(scope Scope) *Builder {
	b.scopes = append(b.scopes, scope)
	return b
}

// Build creates the Engine with all specified options
func (b *Builder) Build() (*Engine, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.target == nil {
		return nil, ErrNoTarget
	}

	store := b.store
	if store == nil {
		store = NewDiskStore()
	}

	opts := b.opts
	if b.optsFile != "" {
		fileOpts, err := LoadOptionsFile(store, b.optsFile)
		if err != nil {
			return nil, err
		}
		fileOpts.Logger = opts.Logger
		opts = fileOpts
	}

	e, err := NewEngine(store, b.target, opts)
	if err != nil {
		return nil, err
	}
	if b.chooser != nil {
		e.chooser = b.chooser
	}
	if b.diagnostics != nil {
		e.diagnostics = b.diagnostics
	}
	if b.notifier != nil {
		e.notifier = b.notifier
	}

	for _, scope := range b.scopes {
		if err := e.Register(scope); err != nil {
			return nil, fmt.Errorf("failed to register scope: %w", err)
		}
	}
	return e, nil
}

// MustBuild is like Build but panics on error
func (b *Builder) MustBuild() *Engine {
	e, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("engine build failed: %v", err))
	}
	return e
}
