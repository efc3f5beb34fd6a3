// FILE: lixenwraith/layersync/capture.go
package layersync

import (
	"path/filepath"
	"strings"
)

// CaptureStore owns the reserved capture layer next to a root config. It
// receives array additions and captured external keys.
type CaptureStore struct {
	store *Store
	path  string
}

// NewCaptureStore places the capture file named name in the root config's
// directory. An empty name selects DefaultCaptureFileName.
func NewCaptureStore(store *Store, root, name string) *CaptureStore {
	if name == "" {
		name = DefaultCaptureFileName
	}
	return &CaptureStore{
		store: store,
		path:  filepath.Join(filepath.Dir(root), name),
	}
}

// Path returns the capture file location.
func (c *CaptureStore) Path() string { return c.path }

// Exists reports whether the capture file has been created.
func (c *CaptureStore) Exists() bool { return c.store.Exists(c.path) }

// AppendToArray appends values to settings[key], creating the file and the
// array as needed.
func (c *CaptureStore) AppendToArray(key string, values []Value) error {
	return c.store.UpdateArray(c.path, key, true, func(cur []Value) []Value {
		out := make([]Value, 0, len(cur)+len(values))
		out = append(out, cur...)
		return append(out, values...)
	})
}

// Put assigns settings[key] in the capture file.
func (c *CaptureStore) Put(key string, v Value) error {
	return c.store.SetSetting(c.path, key, v)
}

// IsReservedName reports whether name would collide with the capture file.
func (c *CaptureStore) IsReservedName(name string) bool {
	return strings.EqualFold(filepath.Base(name), filepath.Base(c.path))
}

// EnsureRegistered adds the capture file to root's extends list once.
func (c *CaptureStore) EnsureRegistered(root string) (bool, error) {
	return c.store.AddExtends(root, c.path)
}
