// FILE: lixenwraith/layersync/resolve.go
package layersync

import (
	"errors"
	"fmt"
	"path/filepath"
)

// LoadFunc reads and parses one layer file. Missing files must be reported
// with an error matching ErrMissingSource or fs.ErrNotExist.
type LoadFunc func(path string) (*ConfigFile, error)

// Chain is the resolved extends ancestry of one root, base first.
type Chain struct {
	Root  string
	Files []*ConfigFile
}

// Paths lists the chain's file paths in precedence order, base first.
func (c *Chain) Paths() []string {
	out := make([]string, len(c.Files))
	for i, f := range c.Files {
		out[i] = f.Path
	}
	return out
}

// Index returns the precedence position of path, or -1.
func (c *Chain) Index(path string) int {
	path = filepath.Clean(path)
	for i, f := range c.Files {
		if f.Path == path {
			return i
		}
	}
	return -1
}

// Contains reports whether path is part of the chain.
func (c *Chain) Contains(path string) bool { return c.Index(path) >= 0 }

// File returns the parsed layer at path, or nil.
func (c *Chain) File(path string) *ConfigFile {
	if i := c.Index(path); i >= 0 {
		return c.Files[i]
	}
	return nil
}

// Resolve walks the extends graph from root depth-first and returns the
// base-first chain. A file reached twice keeps its first position.
func Resolve(root string, load LoadFunc) (*Chain, error) {
	return ResolveWithDepth(root, load, DefaultMaxChainDepth)
}

// ResolveWithDepth is Resolve with an explicit nesting limit; maxDepth <= 0
// disables the limit.
func ResolveWithDepth(root string, load LoadFunc, maxDepth int) (*Chain, error) {
	r := &resolver{
		load:     load,
		maxDepth: maxDepth,
		visiting: make(map[string]bool),
		done:     make(map[string]bool),
	}
	root = filepath.Clean(root)
	if err := r.visit(root, ""); err != nil {
		return nil, err
	}
	return &Chain{Root: root, Files: r.files}, nil
}

type resolver struct {
	load     LoadFunc
	maxDepth int
	visiting map[string]bool
	done     map[string]bool
	stack    []string
	files    []*ConfigFile
}

func (r *resolver) visit(path, from string) error {
	if r.done[path] {
		return nil
	}
	if r.visiting[path] {
		return &CycleError{Cycle: r.cycleFrom(path)}
	}
	if r.maxDepth > 0 && len(r.stack) >= r.maxDepth {
		return fmt.Errorf("%w: more than %d nested extends at '%s'", ErrChainTooDeep, r.maxDepth, path)
	}

	file, err := r.load(path)
	if err != nil {
		var missing *MissingSourceError
		if errors.As(err, &missing) || isNotExist(err) {
			return &MissingSourceError{Path: path, From: from}
		}
		return err
	}
	file.Path = path

	r.visiting[path] = true
	r.stack = append(r.stack, path)
	for _, parent := range file.ExtendsPaths() {
		if err := r.visit(parent, path); err != nil {
			return err
		}
	}
	r.stack = r.stack[:len(r.stack)-1]
	delete(r.visiting, path)

	r.done[path] = true
	r.files = append(r.files, file)
	return nil
}

// cycleFrom returns the stack suffix starting at path, closed with path.
func (r *resolver) cycleFrom(path string) []string {
	for i, p := range r.stack {
		if p == path {
			cycle := append([]string{}, r.stack[i:]...)
			return append(cycle, path)
		}
	}
	return []string{path, path}
}
