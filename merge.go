// FILE: lixenwraith/layersync/merge.go
package layersync

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Segment attributes a contiguous index range of a merged array to one file.
type Segment struct {
	SourceFile string `json:"sourceFile" yaml:"sourceFile"`
	Start      int    `json:"start" yaml:"start"`
	Length     int    `json:"length" yaml:"length"`
}

// Contains reports whether index falls inside the segment.
func (s Segment) Contains(index int) bool {
	return index >= s.Start && index < s.Start+s.Length
}

// KeyProvenance records which files define a key and which one is in effect.
type KeyProvenance struct {
	Key         string    `json:"key" yaml:"key"`
	Winner      string    `json:"winner" yaml:"winner"`
	WinnerValue Value     `json:"winnerValue" yaml:"-"`
	Overrides   []string  `json:"overrides" yaml:"overrides"`
	Segments    []Segment `json:"arraySegments,omitempty" yaml:"arraySegments,omitempty"`
}

// Ambiguous reports whether more than one file contributes to the key's
// final scalar value, so no single file is a safe write-back target.
func (p *KeyProvenance) Ambiguous() bool { return len(p.Overrides) > 0 }

// SegmentAt returns the segment covering index of the merged array.
func (p *KeyProvenance) SegmentAt(index int) (Segment, bool) {
	for _, s := range p.Segments {
		if s.Contains(index) {
			return s, true
		}
	}
	return Segment{}, false
}

// Conflict is a key whose value is fought over by several files.
type Conflict struct {
	Key   string   `json:"key" yaml:"key"`
	Files []string `json:"files" yaml:"files"`
}

// MergeResult is the folded chain plus per-key provenance.
type MergeResult struct {
	Chain      *Chain
	Settings   map[string]Value
	Provenance map[string]*KeyProvenance
	Conflicts  []Conflict
}

// Merge folds the chain base to leaf. Arrays defined by several files are
// concatenated in chain order; any other value is replaced by the later file.
func Merge(chain *Chain) *MergeResult {
	res := &MergeResult{
		Chain:      chain,
		Settings:   make(map[string]Value),
		Provenance: make(map[string]*KeyProvenance),
	}

	for _, file := range chain.Files {
		// sorted for deterministic segment and override order within a file
		for _, key := range sortedKeys(file.Settings) {
			res.apply(file.Path, key, file.Settings[key])
		}
	}

	res.Conflicts = conflictsOf(res.Provenance)
	return res
}

func (r *MergeResult) apply(path, key string, value Value) {
	prov, exists := r.Provenance[key]
	if !exists {
		prov = &KeyProvenance{Key: key, Winner: path, WinnerValue: value, Overrides: []string{}}
		if value.IsArray() {
			prov.Segments = []Segment{{SourceFile: path, Start: 0, Length: value.Len()}}
		}
		r.Provenance[key] = prov
		r.Settings[key] = value
		return
	}

	if prov.WinnerValue.IsArray() && value.IsArray() {
		start := prov.WinnerValue.Len()
		merged := make([]Value, 0, start+value.Len())
		merged = append(merged, prov.WinnerValue.Elements()...)
		merged = append(merged, value.Elements()...)
		prov.WinnerValue = Array(merged...)
		prov.Segments = append(prov.Segments, Segment{SourceFile: path, Start: start, Length: value.Len()})
		prov.Winner = path
		r.Settings[key] = prov.WinnerValue
		return
	}

	// Replace. Every file that contributed to the replaced value is now overridden.
	displaced := []string{prov.Winner}
	if len(prov.Segments) > 0 {
		displaced = lo.Uniq(lo.Map(prov.Segments, func(s Segment, _ int) string { return s.SourceFile }))
	}
	for _, d := range displaced {
		if !lo.Contains(prov.Overrides, d) {
			prov.Overrides = append(prov.Overrides, d)
		}
	}
	prov.Winner = path
	prov.WinnerValue = value
	prov.Segments = nil
	if value.IsArray() {
		prov.Segments = []Segment{{SourceFile: path, Start: 0, Length: value.Len()}}
	}
	r.Settings[key] = value
}

func conflictsOf(provenance map[string]*KeyProvenance) []Conflict {
	var out []Conflict
	for _, key := range sortedKeys(provenance) {
		prov := provenance[key]
		if !prov.Ambiguous() {
			continue
		}
		files := append(append([]string{}, prov.Overrides...), prov.Winner)
		out = append(out, Conflict{Key: key, Files: files})
	}
	return out
}

// OwnedKeys returns the merged keys in lexical order.
func (r *MergeResult) OwnedKeys() []string {
	return sortedKeys(r.Settings)
}

// Owns reports whether key is part of the merge result.
func (r *MergeResult) Owns(key string) bool {
	_, ok := r.Settings[key]
	return ok
}

// Entries returns the merged settings as live-target entries, sorted by key.
func (r *MergeResult) Entries() []Entry {
	keys := r.OwnedKeys()
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Key: k, Value: r.Settings[k]}
	}
	return out
}

// Explain renders the provenance of key for humans.
func (r *MergeResult) Explain(key string) string {
	prov, ok := r.Provenance[key]
	if !ok {
		return fmt.Sprintf("%s: not defined by any layer", key)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s = %s\n", key, prov.WinnerValue)
	fmt.Fprintf(&b, "  winner: %s\n", prov.Winner)
	if len(prov.Overrides) > 0 {
		fmt.Fprintf(&b, "  overrides: %s\n", strings.Join(prov.Overrides, ", "))
	}
	for _, s := range prov.Segments {
		fmt.Fprintf(&b, "  [%d:%d] %s\n", s.Start, s.Start+s.Length, s.SourceFile)
	}
	return b.String()
}

// externalOf returns the live entries whose key is not owned by res.
func externalOf(live map[string]Value, res *MergeResult) map[string]Value {
	out := make(map[string]Value, len(live))
	for k, v := range live {
		if res != nil && res.Owns(k) {
			continue
		}
		out[k] = v
	}
	return out
}
