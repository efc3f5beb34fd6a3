// FILE: lixenwraith/layersync/diff.go
package layersync

import "fmt"

// DiffKind classifies an array change.
type DiffKind int

const (
	DiffNone    DiffKind = iota // arrays are equal
	DiffClean                   // prior minus Removed, then Added appended, yields live
	DiffComplex                 // reorder, interleaved insert, or too large
)

func (k DiffKind) String() string {
	switch k {
	case DiffNone:
		return "none"
	case DiffClean:
		return "clean"
	case DiffComplex:
		return "complex"
	default:
		return fmt.Sprintf("DiffKind(%d)", int(k))
	}
}

// ArrayDiff is the value-level difference between two arrays. Elements have
// no identity, so duplicates are counted as a multiset.
type ArrayDiff struct {
	Kind    DiffKind
	Added   []Value
	Removed []Value
	Reason  string // set for DiffComplex
}

// DiffArrays compares a prior array to its live counterpart. A clean diff
// means live is prior with some elements removed (relative order kept) and
// new elements appended at the tail. Anything else is complex. Arrays longer
// than limit are complex without inspection; limit <= 0 disables the check.
func DiffArrays(prior, live []Value, limit int) ArrayDiff {
	if equalElements(prior, live) {
		return ArrayDiff{Kind: DiffNone}
	}
	if limit > 0 && (len(prior) > limit || len(live) > limit) {
		return ArrayDiff{Kind: DiffComplex, Reason: fmt.Sprintf("array exceeds %d elements", limit)}
	}

	priorCount := make(map[string]int, len(prior))
	for _, v := range prior {
		priorCount[v.Key()]++
	}
	liveCount := make(map[string]int, len(live))
	for _, v := range live {
		liveCount[v.Key()]++
	}

	var d ArrayDiff
	excess := make(map[string]int)
	seen := make(map[string]int)
	for _, v := range live {
		k := v.Key()
		seen[k]++
		if seen[k] > priorCount[k] {
			d.Added = append(d.Added, v)
			excess[k]++
		}
	}
	seen = make(map[string]int)
	for _, v := range prior {
		k := v.Key()
		seen[k]++
		if seen[k] > liveCount[k] {
			d.Removed = append(d.Removed, v)
		}
	}

	// The tail of live must be exactly the added multiset
	kept := len(live) - len(d.Added)
	for _, v := range live[kept:] {
		k := v.Key()
		if excess[k] == 0 {
			return ArrayDiff{Kind: DiffComplex, Reason: "elements inserted before existing entries"}
		}
		excess[k]--
	}

	// and the head a subsequence of prior.
	j := 0
	for _, v := range live[:kept] {
		for j < len(prior) && !prior[j].Equal(v) {
			j++
		}
		if j == len(prior) {
			return ArrayDiff{Kind: DiffComplex, Reason: "elements reordered"}
		}
		j++
	}

	d.Kind = DiffClean
	return d
}
