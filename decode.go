// FILE: lixenwraith/layersync/decode.go
package layersync

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Options tunes an Engine.
type Options struct {
	// CaptureFileName is the reserved layer created next to each root config
	CaptureFileName string `toml:"capture_file" mapstructure:"capture_file"`

	// MaxDiffElements bounds array diffing; longer arrays are complex drift
	MaxDiffElements int `toml:"max_diff_elements" mapstructure:"max_diff_elements"`

	// MaxChainDepth bounds nested extends
	MaxChainDepth int `toml:"max_chain_depth" mapstructure:"max_chain_depth"`

	// Debounce is the watcher's quiet period before acting on file events
	Debounce time.Duration `toml:"debounce" mapstructure:"debounce"`

	// LogLevel is applied to the engine logger when it is built from options
	LogLevel string `toml:"log_level" mapstructure:"log_level"`

	Logger *log.Logger `toml:"-" mapstructure:"-"`
}

// DefaultOptions returns the engine defaults
func DefaultOptions() Options {
	return Options{
		CaptureFileName: DefaultCaptureFileName,
		MaxDiffElements: DefaultMaxDiffElements,
		MaxChainDepth:   DefaultMaxChainDepth,
		Debounce:        DefaultDebounce,
		LogLevel:        "warn",
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CaptureFileName == "" {
		o.CaptureFileName = d.CaptureFileName
	}
	if o.MaxDiffElements == 0 {
		o.MaxDiffElements = d.MaxDiffElements
	}
	if o.MaxChainDepth == 0 {
		o.MaxChainDepth = d.MaxChainDepth
	}
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.LogLevel == "" {
		o.LogLevel = d.LogLevel
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

// Level parses LogLevel, defaulting to warn on unknown input.
func (o Options) Level() log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(o.LogLevel))
	if err != nil {
		return log.WarnLevel
	}
	return lvl
}

// LoadOptionsFile reads engine options from a TOML, YAML or JSON file.
// Keys absent from the file keep their defaults.
func LoadOptionsFile(store *Store, path string) (Options, error) {
	opts := DefaultOptions()
	data, err := store.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("failed to read options file '%s': %w", path, err)
	}

	raw := make(map[string]any)
	switch DetectFormat(path) {
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return opts, &ParseError{Path: path, Err: err}
	}

	if err := decodeOptions(raw, &opts); err != nil {
		return opts, fmt.Errorf("options file '%s': %w", path, err)
	}
	return opts, nil
}

func decodeOptions(raw map[string]any, target *Options) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			millisToDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("decoder creation failed: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	return nil
}

// millisToDurationHookFunc reads bare numbers as milliseconds for duration fields.
func millisToDurationHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(f, t reflect.Type, data any) (any, error) {
		if t != durationType {
			return data, nil
		}
		switch n := data.(type) {
		case int:
			return time.Duration(n) * time.Millisecond, nil
		case int64:
			return time.Duration(n) * time.Millisecond, nil
		case float64:
			return time.Duration(n * float64(time.Millisecond)), nil
		}
		return data, nil
	}
}
