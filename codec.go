// FILE: lixenwraith/layersync/codec.go
package layersync

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a layer file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// DetectFormat determines the layer format from the file extension.
// Unknown extensions are treated as JSON.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml", ".tml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// layerDoc is the decoded shape of a layer file.
type layerDoc struct {
	Extends  []string
	Settings map[string]Value
}

// codec reads and edits one layer format. Edits operate on the raw file
// bytes so formats that can preserve layout do so.
type codec interface {
	decode(data []byte) (*layerDoc, error)
	setSetting(data []byte, key string, v Value) ([]byte, error)
	setExtends(data []byte, extends []string) ([]byte, error)
	template() []byte
}

func codecFor(f Format) codec {
	switch f {
	case FormatYAML:
		return yamlCodec{}
	case FormatTOML:
		return tomlCodec{}
	default:
		return jsonCodec{}
	}
}

// extendsFromAny normalizes the "extends" field: a string or a list of strings.
func extendsFromAny(raw any) ([]string, error) {
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for i, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("extends[%d] must be a string, got %T", i, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("extends must be a string or a list of strings, got %T", raw)
	}
}

// settingsFromAny converts a decoded "settings" table.
func settingsFromAny(raw any) (map[string]Value, error) {
	settings := make(map[string]Value)
	if raw == nil {
		return settings, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("settings must be an object, got %T", raw)
	}
	for k, e := range m {
		v, err := FromAny(e)
		if err != nil {
			return nil, fmt.Errorf("settings[%q]: %w", k, err)
		}
		settings[k] = v
	}
	return settings, nil
}

// jsonCodec reads with gjson and edits in place with sjson, keeping the
// user's formatting and key order.
type jsonCodec struct{}

func (jsonCodec) template() []byte {
	return pretty.Pretty([]byte(`{"settings":{}}`))
}

func (jsonCodec) decode(data []byte) (*layerDoc, error) {
	doc := &layerDoc{Settings: make(map[string]Value)}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("top level must be an object")
	}

	ext := root.Get("extends")
	switch {
	case !ext.Exists() || ext.Type == gjson.Null:
	case ext.Type == gjson.String:
		doc.Extends = []string{ext.Str}
	case ext.IsArray():
		var bad error
		ext.ForEach(func(_, item gjson.Result) bool {
			if item.Type != gjson.String {
				bad = fmt.Errorf("extends entries must be strings, got %s", item.Type)
				return false
			}
			doc.Extends = append(doc.Extends, item.Str)
			return true
		})
		if bad != nil {
			return nil, bad
		}
	default:
		return nil, fmt.Errorf("extends must be a string or a list of strings")
	}

	settings := root.Get("settings")
	switch {
	case !settings.Exists() || settings.Type == gjson.Null:
	case settings.IsObject():
		settings.ForEach(func(key, item gjson.Result) bool {
			doc.Settings[key.String()] = fromGJSON(item)
			return true
		})
	default:
		return nil, fmt.Errorf("settings must be an object")
	}
	return doc, nil
}

func (c jsonCodec) setSetting(data []byte, key string, v Value) ([]byte, error) {
	data = c.ensureObject(data)
	raw, _ := v.MarshalJSON()
	if !gjson.GetBytes(data, "settings").IsObject() {
		var err error
		if data, err = sjson.SetRawBytes(data, "settings", []byte("{}")); err != nil {
			return nil, err
		}
	}
	return sjson.SetRawBytes(data, settingsPath(key), raw)
}

func (c jsonCodec) setExtends(data []byte, extends []string) ([]byte, error) {
	data = c.ensureObject(data)
	raw, _ := Strings(extends...).MarshalJSON()
	return sjson.SetRawBytes(data, "extends", raw)
}

func (c jsonCodec) ensureObject(data []byte) []byte {
	if len(bytes.TrimSpace(data)) == 0 {
		return c.template()
	}
	return data
}

// yamlCodec edits the yaml.Node tree so comments and key order survive.
type yamlCodec struct{}

func (yamlCodec) template() []byte {
	return []byte("settings: {}\n")
}

func (yamlCodec) decode(data []byte) (*layerDoc, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	ext, err := extendsFromAny(raw["extends"])
	if err != nil {
		return nil, err
	}
	settings, err := settingsFromAny(raw["settings"])
	if err != nil {
		return nil, err
	}
	return &layerDoc{Extends: ext, Settings: settings}, nil
}

func (c yamlCodec) setSetting(data []byte, key string, v Value) ([]byte, error) {
	return c.edit(data, func(root *yaml.Node) error {
		settings := mappingChild(root, "settings")
		if settings.Kind != yaml.MappingNode {
			*settings = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		}
		return setMappingValue(settings, key, v.Interface())
	})
}

func (c yamlCodec) setExtends(data []byte, extends []string) ([]byte, error) {
	return c.edit(data, func(root *yaml.Node) error {
		return setMappingValue(root, "extends", extends)
	})
}

func (c yamlCodec) edit(data []byte, fn func(root *yaml.Node) error) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		data = c.template()
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level must be a mapping")
	}
	if err := fn(root); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mappingChild returns the value node for key, appending an empty one if absent.
func mappingChild(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	v := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	m.Content = append(m.Content, k, v)
	return v
}

func setMappingValue(m *yaml.Node, key string, value any) error {
	var node yaml.Node
	if err := node.Encode(value); err != nil {
		return err
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			node.HeadComment = m.Content[i+1].HeadComment
			node.LineComment = m.Content[i+1].LineComment
			*m.Content[i+1] = node
			return nil
		}
	}
	// A "{}" placeholder turns into block style once it has entries
	m.Style &^= yaml.FlowStyle
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &node)
	return nil
}

// tomlCodec re-encodes the whole document on edit; TOML comments are not
// preserved across write-back.
type tomlCodec struct{}

func (tomlCodec) template() []byte {
	return []byte("[settings]\n")
}

func (tomlCodec) decode(data []byte) (*layerDoc, error) {
	raw := make(map[string]any)
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	ext, err := extendsFromAny(raw["extends"])
	if err != nil {
		return nil, err
	}
	settings, err := settingsFromAny(raw["settings"])
	if err != nil {
		return nil, err
	}
	return &layerDoc{Extends: ext, Settings: settings}, nil
}

func (c tomlCodec) setSetting(data []byte, key string, v Value) ([]byte, error) {
	if containsNull(v) {
		return nil, fmt.Errorf("%w: TOML cannot represent null (key %q)", ErrUnsupportedVal, key)
	}
	return c.edit(data, func(raw map[string]any) {
		settings, ok := raw["settings"].(map[string]any)
		if !ok {
			settings = make(map[string]any)
			raw["settings"] = settings
		}
		settings[key] = v.Interface()
	})
}

func (c tomlCodec) setExtends(data []byte, extends []string) ([]byte, error) {
	return c.edit(data, func(raw map[string]any) {
		raw["extends"] = extends
	})
}

func (c tomlCodec) edit(data []byte, fn func(raw map[string]any)) ([]byte, error) {
	raw := make(map[string]any)
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	fn(raw)
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func containsNull(v Value) bool {
	switch v.Kind() {
	case KindNull:
		return true
	case KindArray:
		for _, e := range v.Elements() {
			if containsNull(e) {
				return true
			}
		}
	case KindObject:
		for _, e := range v.Fields() {
			if containsNull(e) {
				return true
			}
		}
	}
	return false
}
