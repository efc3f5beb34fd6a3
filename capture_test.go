// FILE: lixenwraith/layersync/capture_test.go
package layersync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureStore(t *testing.T) {
	t.Run("AppendCreatesFile", func(t *testing.T) {
		store := NewMemStore()
		c := NewCaptureStore(store, "/ws/settings.root.json", "")
		assert.Equal(t, "/ws/"+DefaultCaptureFileName, c.Path())
		assert.False(t, c.Exists())

		require.NoError(t, c.AppendToArray("arr", Strings("a").Elements()))
		require.NoError(t, c.AppendToArray("arr", Strings("b", "c").Elements()))
		assert.True(t, c.Exists())

		f := readLayer(t, store, c.Path())
		assert.True(t, f.Settings["arr"].Equal(Strings("a", "b", "c")))
	})

	t.Run("Put", func(t *testing.T) {
		store := NewMemStore()
		c := NewCaptureStore(store, "/ws/root.json", "captured.json")
		require.NoError(t, c.Put("k", Number(1)))
		require.NoError(t, c.Put("k", Number(2)))
		require.NoError(t, c.Put("other", Bool(true)))

		f := readLayer(t, store, "/ws/captured.json")
		assert.True(t, f.Settings["k"].Equal(Number(2)))
		assert.True(t, f.Settings["other"].Equal(Bool(true)))
	})

	t.Run("AppendToScalarFails", func(t *testing.T) {
		store := NewMemStore()
		c := NewCaptureStore(store, "/ws/root.json", "")
		require.NoError(t, c.Put("k", String("x")))
		err := c.AppendToArray("k", Strings("a").Elements())
		assert.ErrorIs(t, err, ErrNotArray)
		assert.ErrorIs(t, err, ErrWriteFailure)
	})

	t.Run("IsReservedName", func(t *testing.T) {
		c := NewCaptureStore(NewMemStore(), "/ws/root.json", "")
		assert.True(t, c.IsReservedName(DefaultCaptureFileName))
		assert.True(t, c.IsReservedName("sub/SETTINGS.CAPTURE.JSON"))
		assert.False(t, c.IsReservedName("team.json"))
	})

	t.Run("EnsureRegisteredOnce", func(t *testing.T) {
		cases := map[string]string{
			"NoExtends":     `{"settings":{}}`,
			"StringExtends": `{"extends":"base.json","settings":{}}`,
			"ListExtends":   `{"extends":["base.json"],"settings":{}}`,
		}
		for name, content := range cases {
			t.Run(name, func(t *testing.T) {
				store := NewMemStore()
				writeLayers(t, store, map[string]string{"/ws/root.json": content})
				c := NewCaptureStore(store, "/ws/root.json", "")

				changed, err := c.EnsureRegistered("/ws/root.json")
				require.NoError(t, err)
				assert.True(t, changed)
				changed, err = c.EnsureRegistered("/ws/root.json")
				require.NoError(t, err)
				assert.False(t, changed)

				f := readLayer(t, store, "/ws/root.json")
				count := 0
				for _, ref := range f.Extends {
					if ref == DefaultCaptureFileName {
						count++
					}
				}
				assert.Equal(t, 1, count)
				assert.Equal(t, DefaultCaptureFileName, f.Extends[len(f.Extends)-1])
			})
		}
	})

	t.Run("EnsureRegisteredMissingRoot", func(t *testing.T) {
		c := NewCaptureStore(NewMemStore(), "/ws/root.json", "")
		_, err := c.EnsureRegistered("/ws/root.json")
		assert.ErrorIs(t, err, ErrWriteFailure)
	})
}
