// FILE: lixenwraith/layersync/errors.go
package layersync

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below match these through errors.Is.
var (
	ErrCycleDetected  = errors.New("extends cycle detected")
	ErrMissingSource  = errors.New("extended config file not found")
	ErrParse          = errors.New("malformed config file")
	ErrWriteFailure   = errors.New("config file write failed")
	ErrChainTooDeep   = errors.New("extends chain too deep")
	ErrUnknownScope   = errors.New("scope not registered")
	ErrScopeExists    = errors.New("scope already registered")
	ErrNoTarget       = errors.New("live target is required")
	ErrNotArray       = errors.New("setting is not an array")
	ErrReservedName   = errors.New("name is reserved for the capture file")
	ErrUnsupportedVal = errors.New("unsupported value type")
)

// CycleError reports the extends path that loops back on itself.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycleDetected }

// MissingSourceError reports an extends entry that does not resolve to a file.
type MissingSourceError struct {
	Path string
	From string // referencing file, empty for the root
}

func (e *MissingSourceError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("%s: %s", ErrMissingSource, e.Path)
	}
	return fmt.Sprintf("%s: %s (extended from %s)", ErrMissingSource, e.Path, e.From)
}

func (e *MissingSourceError) Is(target error) bool { return target == ErrMissingSource }

// ParseError wraps a decode failure for one layer file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse config file '%s': %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// WriteError reports a failed write-back of one key into one file.
type WriteError struct {
	Path string
	Key  string
	Err  error
}

func (e *WriteError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("failed to write config file '%s': %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to write '%s' to config file '%s': %v", e.Key, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWriteFailure }
