// File: lixenwraith/layersync/helper.go
package layersync

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

// escapePathKey escapes a settings key for use as one gjson/sjson path
// component. Every ASCII rune outside [A-Za-z0-9_-] is escaped: keys carry
// dots ("editor.fontSize") and language blocks open with a bracket
// ("[python]"), which gjson would otherwise read as a multipath.
func escapePathKey(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	for _, r := range key {
		if !isPlainPathRune(r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isPlainPathRune(r rune) bool {
	return r >= utf8.RuneSelf ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
		r == '_' || r == '-'
}

// settingsPath returns the sjson path of settings[key].
func settingsPath(key string) string {
	return "settings." + escapePathKey(key)
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

// resolveRef resolves an extends entry against the directory of the file
// that declares it.
func resolveRef(from, ref string) string {
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	return filepath.Join(filepath.Dir(from), filepath.FromSlash(ref))
}

// relRef returns the extends entry that makes target reachable from the
// file at from, using forward slashes.
func relRef(from, target string) string {
	rel, err := filepath.Rel(filepath.Dir(from), target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}

// removeFirst returns elems without the first element equal to v, and
// whether one was found.
func removeFirst(elems []Value, v Value) ([]Value, bool) {
	for i, e := range elems {
		if e.Equal(v) {
			out := make([]Value, 0, len(elems)-1)
			out = append(out, elems[:i]...)
			return append(out, elems[i+1:]...), true
		}
	}
	return elems, false
}
