// FILE: lixenwraith/layersync/resolve_test.go
package layersync

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("BaseFirstDepthFirst", func(t *testing.T) {
		store := NewMemStore()
		writeLayers(t, store, map[string]string{
			"/ws/root.json":  `{"extends":["a.json","b.json"],"settings":{}}`,
			"/ws/a.json":     `{"extends":"../shared/s.json","settings":{}}`,
			"/ws/b.json":     `{"settings":{}}`,
			"/shared/s.json": `{"settings":{}}`,
		})

		chain, err := Resolve("/ws/root.json", store.Loader())
		require.NoError(t, err)
		want := []string{"/shared/s.json", "/ws/a.json", "/ws/b.json", "/ws/root.json"}
		if diff := cmp.Diff(want, chain.Paths()); diff != "" {
			t.Errorf("chain mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, "/ws/root.json", chain.Root)
		assert.Equal(t, 1, chain.Index("/ws/a.json"))
		assert.True(t, chain.Contains("/ws/./b.json"))
		assert.Nil(t, chain.File("/ws/none.json"))
	})

	t.Run("DiamondKeepsFirstPosition", func(t *testing.T) {
		store := NewMemStore()
		writeLayers(t, store, map[string]string{
			"/ws/root.json":   `{"extends":["a.json","b.json"]}`,
			"/ws/a.json":      `{"extends":"common.json"}`,
			"/ws/b.json":      `{"extends":"common.json"}`,
			"/ws/common.json": `{}`,
		})

		chain, err := Resolve("/ws/root.json", store.Loader())
		require.NoError(t, err)
		assert.Equal(t, []string{"/ws/common.json", "/ws/a.json", "/ws/b.json", "/ws/root.json"}, chain.Paths())
	})

	t.Run("Cycle", func(t *testing.T) {
		store := NewMemStore()
		writeLayers(t, store, map[string]string{
			"/ws/root.json": `{"extends":"a.json"}`,
			"/ws/a.json":    `{"extends":"b.json"}`,
			"/ws/b.json":    `{"extends":"a.json"}`,
		})

		_, err := Resolve("/ws/root.json", store.Loader())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCycleDetected)
		var ce *CycleError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, []string{"/ws/a.json", "/ws/b.json", "/ws/a.json"}, ce.Cycle)
	})

	t.Run("SelfExtend", func(t *testing.T) {
		store := NewMemStore()
		writeLayers(t, store, map[string]string{"/ws/root.json": `{"extends":"root.json"}`})
		_, err := Resolve("/ws/root.json", store.Loader())
		assert.ErrorIs(t, err, ErrCycleDetected)
	})

	t.Run("MissingSource", func(t *testing.T) {
		store := NewMemStore()
		writeLayers(t, store, map[string]string{"/ws/root.json": `{"extends":"gone.json"}`})

		_, err := Resolve("/ws/root.json", store.Loader())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingSource)
		var me *MissingSourceError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, "/ws/gone.json", me.Path)
		assert.Equal(t, "/ws/root.json", me.From)
	})

	t.Run("MissingRoot", func(t *testing.T) {
		_, err := Resolve("/ws/root.json", NewMemStore().Loader())
		var me *MissingSourceError
		require.ErrorAs(t, err, &me)
		assert.Empty(t, me.From)
	})

	t.Run("ParseErrorAbortsChain", func(t *testing.T) {
		store := NewMemStore()
		writeLayers(t, store, map[string]string{
			"/ws/root.json": `{"extends":"bad.json","settings":{"x":1}}`,
			"/ws/bad.json":  `{"settings":`,
		})
		chain, err := Resolve("/ws/root.json", store.Loader())
		assert.Nil(t, chain)
		assert.ErrorIs(t, err, ErrParse)
	})

	t.Run("DepthLimit", func(t *testing.T) {
		files := make(map[string]string)
		for i := 0; i < 10; i++ {
			files[fmt.Sprintf("/ws/l%d.json", i)] = fmt.Sprintf(`{"extends":"l%d.json"}`, i+1)
		}
		files["/ws/l10.json"] = `{}`
		store := NewMemStore()
		writeLayers(t, store, files)

		_, err := ResolveWithDepth("/ws/l0.json", store.Loader(), 5)
		assert.ErrorIs(t, err, ErrChainTooDeep)

		chain, err := ResolveWithDepth("/ws/l0.json", store.Loader(), 0)
		require.NoError(t, err)
		assert.Len(t, chain.Files, 11)
	})

	t.Run("LoaderErrorPropagates", func(t *testing.T) {
		boom := errors.New("disk on fire")
		_, err := Resolve("/ws/root.json", func(string) (*ConfigFile, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	})
}
