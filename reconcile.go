// FILE: lixenwraith/layersync/reconcile.go
package layersync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
)

// Outcome names the branch a reconciliation pass took.
type Outcome int

const (
	OutcomeNoOp       Outcome = iota // nothing to do
	OutcomeSuppressed                // notification caused by the engine's own push
	OutcomeArray                     // array drift handled
	OutcomeScalar                    // owned scalar drift handled
	OutcomeExternal                  // unowned keys offered for capture
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoOp:
		return "noop"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeArray:
		return "array"
	case OutcomeScalar:
		return "scalar"
	case OutcomeExternal:
		return "external"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// WriteRecord is one successful layer file write.
type WriteRecord struct {
	Path string `json:"path" yaml:"path"`
	Key  string `json:"key" yaml:"key"`
}

// SkippedKey is a drifted key the pass deliberately left alone.
type SkippedKey struct {
	Key    string `json:"key" yaml:"key"`
	Reason string `json:"reason" yaml:"reason"`
}

// Report describes one reconciliation pass.
type Report struct {
	Scope         string
	Outcome       Outcome
	ArrayKeys     []string // keys whose array drift was reconciled or blocked
	Written       []WriteRecord
	Ambiguous     []string // drifted keys with several contributing files
	Blocked       []BlockedRemoval
	Skipped       []SkippedKey
	Captured      []string
	CaptureTarget string
	Declined      bool
	Failures      []error
}

// Err joins the non-fatal failures of the pass.
func (r *Report) Err() error {
	return errors.Join(r.Failures...)
}

// Writes reports the number of layer file writes.
func (r *Report) Writes() int { return len(r.Written) }

// pass carries one reconciliation run over a snapshot of the live state.
type pass struct {
	e      *Engine
	slot   *scopeSlot
	res    *MergeResult
	live   map[string]Value
	report *Report
	logger *log.Logger
}

func (e *Engine) reconcile(ctx context.Context, slot *scopeSlot, st ScopeState) (ScopeState, *Report, error) {
	name := slot.scope.Name
	report := &Report{Scope: name}
	if st.Result == nil || len(st.Result.Settings) == 0 {
		return st, report, nil
	}

	live, err := e.target.ReadAll(ctx, name)
	if err != nil {
		return st, report, fmt.Errorf("scope %s: read live target: %w", name, err)
	}

	p := &pass{
		e:      e,
		slot:   slot,
		res:    st.Result,
		live:   live,
		report: report,
		logger: e.logger.With("scope", name),
	}

	switch {
	case p.arrayDrift(ctx):
		report.Outcome = OutcomeArray
	case p.scalarDrift(ctx):
		report.Outcome = OutcomeScalar
	default:
		return p.externalDelta(ctx, st), report, nil
	}
	return p.commit(st), report, nil
}

// commit re-merges after write-back so the next pass compares against what
// is now on disk, then refreshes the baseline from the pass's live snapshot.
func (p *pass) commit(st ScopeState) ScopeState {
	if len(p.report.Written) > 0 {
		res, err := p.e.merge(p.slot.scope)
		if err != nil {
			p.logger.Error("re-merge after write-back failed", "err", err)
			p.report.Failures = append(p.report.Failures, err)
		} else {
			st.Result = res
		}
	}
	st.Baseline = externalOf(p.live, st.Result)
	return st
}

func (p *pass) wrote(path, key string) {
	p.report.Written = append(p.report.Written, WriteRecord{Path: path, Key: key})
	p.logger.Info("wrote setting", "file", path, "key", key)
}

func (p *pass) fail(ctx context.Context, err error) {
	p.report.Failures = append(p.report.Failures, err)
	p.logger.Error("write-back failed", "err", err)
	var we *WriteError
	if errors.As(err, &we) {
		p.e.notifier.WarnWriteFailure(ctx, we)
	}
}

func (p *pass) skip(key, reason string) {
	p.report.Skipped = append(p.report.Skipped, SkippedKey{Key: key, Reason: reason})
}

type arrayChange struct {
	key  string
	prov *KeyProvenance
	diff ArrayDiff
}

// arrayDrift handles every owned array key whose live value changed in a
// cleanly expressible way. Reports whether any such key was found.
func (p *pass) arrayDrift(ctx context.Context) bool {
	var changes []arrayChange
	for _, key := range p.res.OwnedKeys() {
		prov := p.res.Provenance[key]
		if !prov.WinnerValue.IsArray() {
			continue
		}
		lv, ok := p.live[key]
		if ok && lv.Equal(prov.WinnerValue) {
			continue
		}
		if !ok || !lv.IsArray() {
			p.skip(key, "live value is no longer an array")
			continue
		}

		d := DiffArrays(prov.WinnerValue.Elements(), lv.Elements(), p.e.opts.MaxDiffElements)
		switch d.Kind {
		case DiffNone:
			continue
		case DiffComplex:
			p.logger.Warn("array change too complex to write back", "key", key, "reason", d.Reason)
			p.skip(key, d.Reason)
			continue
		}
		changes = append(changes, arrayChange{key: key, prov: prov, diff: d})
	}

	for _, c := range changes {
		p.report.ArrayKeys = append(p.report.ArrayKeys, c.key)
		p.reconcileArray(ctx, c)
	}
	return len(changes) > 0
}

func (p *pass) reconcileArray(ctx context.Context, c arrayChange) {
	prior := c.prov.WinnerValue.Elements()
	boundary := p.slot.scope.Boundary

	owners := make([]string, len(prior))
	for _, s := range c.prov.Segments {
		for i := s.Start; i < s.Start+s.Length && i < len(owners); i++ {
			owners[i] = s.SourceFile
		}
	}

	if blocked := p.guard(c, prior, owners); len(blocked) > 0 {
		for _, b := range blocked {
			p.logger.Warn("removal blocked", "key", b.Key, "value", b.Value.String(), "file", b.SourceFile)
			p.e.notifier.WarnBlockedRemoval(ctx, b)
		}
		p.report.Blocked = append(p.report.Blocked, blocked...)
		if err := p.e.revert(ctx, p.slot, c.key, c.prov.WinnerValue); err != nil {
			p.report.Failures = append(p.report.Failures, fmt.Errorf("revert %q: %w", c.key, err))
			p.logger.Error("failed to revert live array", "key", c.key, "err", err)
		}
		p.live[c.key] = c.prov.WinnerValue
		return
	}

	if len(c.diff.Added) > 0 {
		capture := p.slot.capture
		if err := capture.AppendToArray(c.key, c.diff.Added); err != nil {
			p.fail(ctx, err)
		} else {
			p.wrote(capture.Path(), c.key)
			if changed, err := capture.EnsureRegistered(p.slot.scope.Root); err != nil {
				p.fail(ctx, err)
			} else if changed {
				p.wrote(p.slot.scope.Root, "extends")
			}
		}
	}

	if len(c.diff.Removed) == 0 {
		return
	}

	consumed := make([]bool, len(prior))
	byFile := make(map[string][]Value)
	var order []string
	for _, v := range c.diff.Removed {
		idx := pickOccurrence(prior, owners, consumed, v, c.prov.Winner, boundary)
		if idx < 0 {
			p.skip(c.key, fmt.Sprintf("no owned occurrence left for %s", v))
			continue
		}
		consumed[idx] = true
		file := owners[idx]
		if _, seen := byFile[file]; !seen {
			order = append(order, file)
		}
		byFile[file] = append(byFile[file], v)
	}

	for _, file := range order {
		values := byFile[file]
		err := p.e.store.UpdateArray(file, c.key, false, func(cur []Value) []Value {
			for _, v := range values {
				cur, _ = removeFirst(cur, v)
			}
			return cur
		})
		if err != nil {
			p.fail(ctx, err)
			continue
		}
		p.wrote(file, c.key)
	}
}

// guard returns the removals that would touch only parent-owned entries.
// A value removed n times needs n occurrences inside the boundary.
func (p *pass) guard(c arrayChange, prior []Value, owners []string) []BlockedRemoval {
	boundary := p.slot.scope.Boundary
	wanted := make(map[string]int)
	var distinct []Value
	for _, v := range c.diff.Removed {
		k := v.Key()
		if wanted[k] == 0 {
			distinct = append(distinct, v)
		}
		wanted[k]++
	}

	var blocked []BlockedRemoval
	for _, v := range distinct {
		k := v.Key()
		total, owned := 0, 0
		parent := ""
		for i, e := range prior {
			if e.Key() != k {
				continue
			}
			total++
			if boundary.Owns(owners[i]) {
				owned++
			} else if parent == "" {
				parent = owners[i]
			}
		}
		if total > 0 && wanted[k] > owned {
			blocked = append(blocked, BlockedRemoval{Key: c.key, Value: v, SourceFile: parent})
		}
	}
	return blocked
}

// pickOccurrence chooses which prior element a removal consumes: the
// winner's own entry first, then any entry inside the boundary.
func pickOccurrence(prior []Value, owners []string, consumed []bool, v Value, winner string, boundary Boundary) int {
	fallback := -1
	for i, e := range prior {
		if consumed[i] || !e.Equal(v) || !boundary.Owns(owners[i]) {
			continue
		}
		if owners[i] == winner {
			return i
		}
		if fallback < 0 {
			fallback = i
		}
	}
	return fallback
}

// scalarDrift writes changed non-array keys back into their single owner.
// Reports whether any owned scalar drifted.
func (p *pass) scalarDrift(ctx context.Context) bool {
	drifted := false
	for _, key := range p.res.OwnedKeys() {
		prov := p.res.Provenance[key]
		if prov.WinnerValue.IsArray() {
			continue
		}
		lv, ok := p.live[key]
		if !ok {
			// removed from the live target; the next rebuild restores it
			continue
		}
		if lv.IsArray() {
			p.skip(key, "live value changed to an array")
			continue
		}
		if lv.Equal(prov.WinnerValue) {
			continue
		}

		drifted = true
		if prov.Ambiguous() {
			p.report.Ambiguous = append(p.report.Ambiguous, key)
			p.logger.Info("not writing back ambiguous key", "key", key, "winner", prov.Winner, "overrides", prov.Overrides)
			continue
		}
		if err := p.e.store.SetSetting(prov.Winner, key, lv); err != nil {
			p.fail(ctx, err)
			continue
		}
		p.wrote(prov.Winner, key)
	}
	return drifted
}

// externalDelta offers new or changed unowned live keys to the chooser.
func (p *pass) externalDelta(ctx context.Context, st ScopeState) ScopeState {
	ext := externalOf(p.live, p.res)
	var candidates []string
	removed := 0
	for k, v := range ext {
		if old, ok := st.Baseline[k]; !ok || !old.Equal(v) {
			candidates = append(candidates, k)
		}
	}
	for k := range st.Baseline {
		if _, ok := ext[k]; !ok {
			removed++
		}
	}
	if len(candidates) == 0 {
		if removed > 0 {
			p.logger.Debug("external keys removed", "count", removed)
			st.Baseline = ext
		}
		return st
	}
	sort.Strings(candidates)
	p.report.Outcome = OutcomeExternal

	dest, err := p.e.chooser.ChooseDestination(ctx, candidates, p.existingNames())
	if err != nil {
		p.report.Failures = append(p.report.Failures, fmt.Errorf("choose destination: %w", err))
		p.logger.Error("destination chooser failed", "err", err)
		return st
	}

	path, err := p.destinationPath(dest)
	if err != nil {
		p.report.Failures = append(p.report.Failures, err)
		p.logger.Error("invalid capture destination", "name", dest.Name, "err", err)
		return st
	}
	if path == "" {
		p.report.Declined = true
		p.logger.Debug("capture declined", "keys", candidates)
		st.Baseline = ext
		return st
	}

	p.report.CaptureTarget = path
	for _, key := range candidates {
		if err := p.e.store.SetSetting(path, key, ext[key]); err != nil {
			p.fail(ctx, err)
			continue
		}
		p.report.Captured = append(p.report.Captured, key)
		p.wrote(path, key)
	}

	root := p.slot.scope.Root
	if len(p.report.Captured) > 0 && path != root && !p.res.Chain.Contains(path) {
		if changed, err := p.e.store.AddExtends(root, path); err != nil {
			p.fail(ctx, err)
		} else if changed {
			p.wrote(root, "extends")
		}
	}
	return p.commit(st)
}

// destinationPath maps a chooser decision to a layer path. Empty means declined.
func (p *pass) destinationPath(dest Destination) (string, error) {
	switch dest.Kind {
	case DestDeclined:
		return "", nil
	case DestCapture:
		return p.slot.capture.Path(), nil
	case DestExisting:
		path := resolveRef(p.slot.scope.Root, dest.Name)
		if !p.e.store.Exists(path) {
			return "", &MissingSourceError{Path: path}
		}
		return path, nil
	case DestCreate:
		if dest.Name == "" {
			return "", fmt.Errorf("new layer name must not be empty")
		}
		if p.slot.capture.IsReservedName(dest.Name) {
			return "", fmt.Errorf("%w: %s", ErrReservedName, dest.Name)
		}
		path := resolveRef(p.slot.scope.Root, dest.Name)
		if err := p.e.store.CreateLayer(path); err != nil {
			return "", &WriteError{Path: path, Err: err}
		}
		return path, nil
	default:
		return "", fmt.Errorf("unknown destination kind %v", dest.Kind)
	}
}

// existingNames lists the chain's layers relative to the root directory,
// without the capture file.
func (p *pass) existingNames() []string {
	dir := filepath.Dir(p.slot.scope.Root)
	var names []string
	for _, path := range p.res.Chain.Paths() {
		if path == p.slot.capture.Path() {
			continue
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		names = append(names, filepath.ToSlash(rel))
	}
	return names
}
