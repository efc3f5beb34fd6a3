// FILE: lixenwraith/layersync/target.go
package layersync

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// FileTarget is a LiveTarget backed by one flat JSON object file, such as
// an editor's user settings. The scope name is not part of the file.
type FileTarget struct {
	store *Store
	path  string
	mu    sync.Mutex
}

// NewFileTarget returns a target over path. The file is created on first write.
func NewFileTarget(store *Store, path string) *FileTarget {
	return &FileTarget{store: store, path: path}
}

// Path returns the live file location.
func (t *FileTarget) Path() string { return t.path }

func (t *FileTarget) read() ([]byte, error) {
	data, err := t.store.ReadFile(t.path)
	if err != nil {
		if isNotExist(err) {
			return []byte("{}"), nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("{}"), nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, &ParseError{Path: t.path, Err: fmt.Errorf("live file must hold a JSON object")}
	}
	return data, nil
}

// SetMany writes all entries in one file replacement.
func (t *FileTarget) SetMany(_ context.Context, _ string, entries []Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := t.read()
	if err != nil {
		return err
	}
	orig := data
	for _, e := range entries {
		if cur := gjson.GetBytes(data, escapePathKey(e.Key)); cur.Exists() && fromGJSON(cur).Equal(e.Value) {
			continue
		}
		raw, _ := e.Value.MarshalJSON()
		if data, err = sjson.SetRawBytes(data, escapePathKey(e.Key), raw); err != nil {
			return fmt.Errorf("set %q: %w", e.Key, err)
		}
	}
	if bytes.Equal(orig, data) {
		return nil
	}
	return t.store.WriteFile(t.path, pretty.Pretty(data))
}

// Unset removes one key.
func (t *FileTarget) Unset(_ context.Context, _ string, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := t.read()
	if err != nil {
		return err
	}
	if !gjson.GetBytes(data, escapePathKey(key)).Exists() {
		return nil
	}
	out, err := sjson.DeleteBytes(data, escapePathKey(key))
	if err != nil {
		return fmt.Errorf("unset %q: %w", key, err)
	}
	return t.store.WriteFile(t.path, pretty.Pretty(out))
}

// ReadAll returns the whole live object.
func (t *FileTarget) ReadAll(_ context.Context, _ string) (map[string]Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := t.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Value)
	gjson.ParseBytes(data).ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = fromGJSON(v)
		return true
	})
	return out, nil
}
