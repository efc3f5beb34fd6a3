// FILE: lixenwraith/layersync/boundary.go
package layersync

import (
	"path/filepath"
	"strings"
)

// Boundary decides which layer files a scope owns. Files outside the
// boundary are parent-owned: their array entries are never removed on
// behalf of a live edit.
type Boundary interface {
	Owns(path string) bool
}

// BoundaryFunc adapts a function to Boundary.
type BoundaryFunc func(path string) bool

func (f BoundaryFunc) Owns(path string) bool { return f(path) }

// AllOwned treats every layer as owned by the scope.
var AllOwned Boundary = BoundaryFunc(func(string) bool { return true })

// DirBoundary owns files located under dir.
type DirBoundary string

func (d DirBoundary) Owns(path string) bool {
	dir := string(d)
	if dir == "" {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel))
}
