// FILE: lixenwraith/layersync/interfaces.go
package layersync

import (
	"context"

	"github.com/charmbracelet/log"
)

// Entry is one key/value pair pushed to a live target.
type Entry struct {
	Key   string
	Value Value
}

// LiveTarget is the host's live key/value configuration store.
type LiveTarget interface {
	SetMany(ctx context.Context, scope string, entries []Entry) error
	Unset(ctx context.Context, scope string, key string) error
	ReadAll(ctx context.Context, scope string) (map[string]Value, error)
}

// DestinationKind selects where captured external keys go.
type DestinationKind int

const (
	DestDeclined DestinationKind = iota
	DestCapture
	DestExisting
	DestCreate
)

func (k DestinationKind) String() string {
	switch k {
	case DestCapture:
		return "capture"
	case DestExisting:
		return "existing"
	case DestCreate:
		return "create"
	default:
		return "declined"
	}
}

// Destination is a chooser decision. Name is a path relative to the root
// config's directory and is used by DestExisting and DestCreate.
type Destination struct {
	Kind DestinationKind
	Name string
}

// DestinationChooser picks a file for newly observed external keys.
// existing lists the chain's layer names, capture file excluded.
type DestinationChooser interface {
	ChooseDestination(ctx context.Context, keys []string, existing []string) (Destination, error)
}

// ChooserFunc adapts a function to DestinationChooser.
type ChooserFunc func(ctx context.Context, keys []string, existing []string) (Destination, error)

func (f ChooserFunc) ChooseDestination(ctx context.Context, keys []string, existing []string) (Destination, error) {
	return f(ctx, keys, existing)
}

// DeclineChooser never captures.
var DeclineChooser DestinationChooser = ChooserFunc(func(context.Context, []string, []string) (Destination, error) {
	return Destination{Kind: DestDeclined}, nil
})

// CaptureChooser always routes to the capture file.
var CaptureChooser DestinationChooser = ChooserFunc(func(context.Context, []string, []string) (Destination, error) {
	return Destination{Kind: DestCapture}, nil
})

// DiagnosticsSink receives the conflict set after every rebuild.
type DiagnosticsSink interface {
	Report(scope string, conflicts []Conflict)
}

// BlockedRemoval describes a live array removal that was refused because
// the value is only contributed by a parent-owned file.
type BlockedRemoval struct {
	Key        string
	Value      Value
	SourceFile string
}

// Notifier surfaces user-visible warnings.
type Notifier interface {
	WarnBlockedRemoval(ctx context.Context, b BlockedRemoval)
	WarnWriteFailure(ctx context.Context, err *WriteError)
}

type nopSink struct{}

func (nopSink) Report(string, []Conflict) {}
func (nopSink) WarnBlockedRemoval(context.Context, BlockedRemoval) {}
func (nopSink) WarnWriteFailure(context.Context, *WriteError) {}

// LogSink reports diagnostics and warnings through a charmbracelet logger.
type LogSink struct {
	Logger *log.Logger
}

func (s LogSink) Report(scope string, conflicts []Conflict) {
	for _, c := range conflicts {
		s.Logger.Warn("conflicting definitions", "scope", scope, "key", c.Key, "files", c.Files)
	}
}

func (s LogSink) WarnBlockedRemoval(_ context.Context, b BlockedRemoval) {
	s.Logger.Warn("removal blocked: value is defined by a parent config",
		"key", b.Key, "value", b.Value.String(), "file", b.SourceFile)
}

func (s LogSink) WarnWriteFailure(_ context.Context, err *WriteError) {
	s.Logger.Error("write-back failed", "file", err.Path, "key", err.Key, "err", err.Err)
}
