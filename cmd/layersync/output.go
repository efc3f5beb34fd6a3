// FILE: lixenwraith/layersync/cmd/layersync/output.go
package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/pretty"
	"gopkg.in/yaml.v3"

	"github.com/lixenwraith/layersync"
)

// printValue writes any JSON-encodable value in the selected format.
func printValue(w io.Writer, format string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	switch format {
	case "json", "":
		_, err = w.Write(pretty.Pretty(raw))
		return err
	case "yaml", "yml":
		// round-trip through Value keeps number formatting stable
		var val layersync.Value
		if err := val.UnmarshalJSON(raw); err != nil {
			return err
		}
		out, err := yaml.Marshal(val.Interface())
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

type provenanceView struct {
	Key       string              `json:"key"`
	Value     layersync.Value     `json:"value"`
	Winner    string              `json:"winner"`
	Overrides []string            `json:"overrides"`
	Segments  []layersync.Segment `json:"arraySegments,omitempty"`
}

type reportView struct {
	Outcome       string                  `json:"outcome"`
	Written       []layersync.WriteRecord `json:"written,omitempty"`
	Ambiguous     []string                `json:"ambiguous,omitempty"`
	Blocked       []blockedView           `json:"blocked,omitempty"`
	Skipped       []layersync.SkippedKey  `json:"skipped,omitempty"`
	Captured      []string                `json:"captured,omitempty"`
	CaptureTarget string                  `json:"captureTarget,omitempty"`
	Declined      bool                    `json:"declined,omitempty"`
	Failures      []string                `json:"failures,omitempty"`
}

type blockedView struct {
	Key   string          `json:"key"`
	Value layersync.Value `json:"value"`
	File  string          `json:"file"`
}

func viewReport(r *layersync.Report) reportView {
	v := reportView{
		Outcome:       r.Outcome.String(),
		Written:       r.Written,
		Ambiguous:     r.Ambiguous,
		Skipped:       r.Skipped,
		Captured:      r.Captured,
		CaptureTarget: r.CaptureTarget,
		Declined:      r.Declined,
	}
	for _, b := range r.Blocked {
		v.Blocked = append(v.Blocked, blockedView{Key: b.Key, Value: b.Value, File: b.SourceFile})
	}
	for _, err := range r.Failures {
		v.Failures = append(v.Failures, err.Error())
	}
	return v
}
