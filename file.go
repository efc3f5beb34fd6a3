// FILE: lixenwraith/layersync/file.go
package layersync

import (
	"fmt"
	"path/filepath"
)

// ConfigFile is one parsed layer.
type ConfigFile struct {
	Path     string
	Format   Format
	Extends  []string // as written, relative to the file's directory
	Settings map[string]Value
}

// ParseConfigFile decodes layer bytes. The format follows the path extension.
func ParseConfigFile(path string, data []byte) (*ConfigFile, error) {
	format := DetectFormat(path)
	doc, err := codecFor(format).decode(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &ConfigFile{
		Path:     path,
		Format:   format,
		Extends:  doc.Extends,
		Settings: doc.Settings,
	}, nil
}

// ExtendsPaths returns the extends entries resolved against the file's directory.
func (f *ConfigFile) ExtendsPaths() []string {
	out := make([]string, len(f.Extends))
	for i, ref := range f.Extends {
		out[i] = resolveRef(f.Path, ref)
	}
	return out
}

// LoadConfigFile reads and parses one layer. A missing file is reported as
// a *MissingSourceError with an empty From.
func (s *Store) LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := s.ReadFile(path)
	if err != nil {
		if isNotExist(err) {
			return nil, &MissingSourceError{Path: path}
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	return ParseConfigFile(path, data)
}

// Loader adapts the store to the resolver.
func (s *Store) Loader() LoadFunc {
	return s.LoadConfigFile
}

// editFile performs a read-modify-write of one layer file. A missing file
// starts from the empty template when create is set. fn returning nil bytes
// leaves the file untouched.
func (s *Store) editFile(path string, create bool, fn func(c codec, data []byte) ([]byte, error)) error {
	c := codecFor(DetectFormat(path))
	data, err := s.ReadFile(path)
	if err != nil {
		if !isNotExist(err) || !create {
			return err
		}
		data = c.template()
	} else if _, err := c.decode(data); err != nil {
		// never overwrite a file we cannot read back
		return &ParseError{Path: path, Err: err}
	}

	out, err := fn(c, data)
	if err != nil || out == nil {
		return err
	}
	return s.WriteFile(path, out)
}

// CreateLayer writes the empty template at path unless a file already exists.
func (s *Store) CreateLayer(path string) error {
	if s.Exists(path) {
		return nil
	}
	return s.WriteFile(path, codecFor(DetectFormat(path)).template())
}

// SetSetting writes settings[key] = v into the layer at path, creating the file if absent.
func (s *Store) SetSetting(path, key string, v Value) error {
	err := s.editFile(path, true, func(c codec, data []byte) ([]byte, error) {
		return c.setSetting(data, key, v)
	})
	if err != nil {
		return &WriteError{Path: path, Key: key, Err: err}
	}
	return nil
}

// UpdateArray rewrites the array at settings[key] through fn. A missing key
// is passed to fn as an empty array when create is set.
func (s *Store) UpdateArray(path, key string, create bool, fn func([]Value) []Value) error {
	err := s.editFile(path, create, func(c codec, data []byte) ([]byte, error) {
		doc, err := c.decode(data)
		if err != nil {
			return nil, err
		}
		current, ok := doc.Settings[key]
		switch {
		case !ok && !create:
			return nil, fmt.Errorf("%w: key %q not present", ErrNotArray, key)
		case ok && !current.IsArray():
			return nil, fmt.Errorf("%w: key %q holds %s", ErrNotArray, key, current.Kind())
		}
		return c.setSetting(data, key, Array(fn(current.Elements())...))
	})
	if err != nil {
		return &WriteError{Path: path, Key: key, Err: err}
	}
	return nil
}

// AddExtends appends target to the extends list of the layer at path unless
// an existing entry already resolves to it. Reports whether the file changed.
func (s *Store) AddExtends(path, target string) (bool, error) {
	changed := false
	err := s.editFile(path, false, func(c codec, data []byte) ([]byte, error) {
		doc, err := c.decode(data)
		if err != nil {
			return nil, err
		}
		want := filepath.Clean(target)
		for _, ref := range doc.Extends {
			if resolveRef(path, ref) == want {
				return nil, nil
			}
		}
		changed = true
		return c.setExtends(data, append(doc.Extends, relRef(path, want)))
	})
	if err != nil {
		return false, &WriteError{Path: path, Key: "extends", Err: err}
	}
	return changed, nil
}
