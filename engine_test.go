// FILE: lixenwraith/layersync/engine_test.go
package layersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(NewMemStore(), nil, Options{})
	assert.ErrorIs(t, err, ErrNoTarget)

	e, err := NewEngine(nil, newMemTarget(), Options{})
	require.NoError(t, err)
	assert.NotNil(t, e.Store())
	assert.Equal(t, DefaultCaptureFileName, e.opts.CaptureFileName)
	assert.Equal(t, DefaultMaxDiffElements, e.opts.MaxDiffElements)
	assert.NotNil(t, e.logger)
}

func TestEngineScopes(t *testing.T) {
	e, err := NewEngine(NewMemStore(), newMemTarget(), Options{})
	require.NoError(t, err)

	t.Run("Validation", func(t *testing.T) {
		assert.Error(t, e.Register(Scope{Root: "/a/root.json"}))
		assert.Error(t, e.Register(Scope{Name: "a"}))
	})

	t.Run("RegisterAndLookup", func(t *testing.T) {
		require.NoError(t, e.Register(Scope{Name: "b", Root: "/repo/b/./root.json"}))
		require.NoError(t, e.Register(Scope{Name: "a", Root: "/repo/a/root.json"}))
		assert.Equal(t, []string{"a", "b"}, e.Scopes())

		s, err := e.Scope("b")
		require.NoError(t, err)
		assert.Equal(t, "/repo/b/root.json", s.Root)
		assert.Equal(t, DirBoundary("/repo/b"), s.Boundary)

		path, err := e.CapturePath("b")
		require.NoError(t, err)
		assert.Equal(t, "/repo/b/"+DefaultCaptureFileName, path)

		st, err := e.State("a")
		require.NoError(t, err)
		assert.Nil(t, st.Result)
	})

	t.Run("Duplicate", func(t *testing.T) {
		err := e.Register(Scope{Name: "a", Root: "/other/root.json"})
		assert.ErrorIs(t, err, ErrScopeExists)
	})

	t.Run("Unknown", func(t *testing.T) {
		ctx := context.Background()
		_, err := e.Rebuild(ctx, "missing")
		assert.ErrorIs(t, err, ErrUnknownScope)
		_, err = e.Reconcile(ctx, "missing")
		assert.ErrorIs(t, err, ErrUnknownScope)
		_, err = e.NotifyLiveChange(ctx, "missing")
		assert.ErrorIs(t, err, ErrUnknownScope)
		assert.ErrorIs(t, e.Unregister("missing"), ErrUnknownScope)
	})

	t.Run("Unregister", func(t *testing.T) {
		require.NoError(t, e.Unregister("a"))
		assert.Equal(t, []string{"b"}, e.Scopes())
		_, err := e.State("a")
		assert.ErrorIs(t, err, ErrUnknownScope)
	})
}

func TestEngineRebuild(t *testing.T) {
	ctx := context.Background()

	t.Run("PushesMergedSettings", func(t *testing.T) {
		e, _, target, rec := testEngine(t, map[string]string{
			"/ws/base.json": `{"settings":{"a":1,"k":"base","arr":["x"]}}`,
			wsRoot:          `{"extends":"base.json","settings":{"k":"root","arr":["y"]}}`,
		}, wsRoot)

		res, err := e.Rebuild(ctx, "ws")
		require.NoError(t, err)
		assert.Len(t, res.Settings, 3)

		v, _ := target.get("arr")
		assert.True(t, v.Equal(Strings("x", "y")))
		v, _ = target.get("k")
		assert.True(t, v.Equal(String("root")))

		require.Len(t, rec.conflicts["ws"], 1)
		assert.Equal(t, Conflict{Key: "k", Files: []string{"/ws/base.json", wsRoot}}, rec.conflicts["ws"][0])
	})

	t.Run("UnsetsDroppedKeys", func(t *testing.T) {
		e, store, target, _ := testEngine(t, map[string]string{
			wsRoot: `{"settings":{"a":1,"b":2}}`,
		}, wsRoot)
		_, err := e.Rebuild(ctx, "ws")
		require.NoError(t, err)

		writeLayers(t, store, map[string]string{wsRoot: `{"settings":{"a":1}}`})
		_, err = e.Rebuild(ctx, "ws")
		require.NoError(t, err)

		_, ok := target.get("b")
		assert.False(t, ok)
		assert.Equal(t, 1, target.unsetN)
	})

	t.Run("BaselineExcludesOwnedKeys", func(t *testing.T) {
		e, _, target, _ := testEngine(t, map[string]string{
			wsRoot: `{"settings":{"a":1}}`,
		}, wsRoot)
		target.set("host", String("x"))
		target.set("a", Number(9))

		_, err := e.Rebuild(ctx, "ws")
		require.NoError(t, err)
		st, err := e.State("ws")
		require.NoError(t, err)
		assert.Equal(t, map[string]Value{"host": String("x")}, st.Baseline)
	})

	t.Run("MergeFailureKeepsState", func(t *testing.T) {
		e, store, target, _ := testEngine(t, map[string]string{
			wsRoot: `{"settings":{"a":1}}`,
		}, wsRoot)
		first, err := e.Rebuild(ctx, "ws")
		require.NoError(t, err)

		writeLayers(t, store, map[string]string{wsRoot: `{"settings":`})
		_, err = e.Rebuild(ctx, "ws")
		assert.ErrorIs(t, err, ErrParse)

		st, _ := e.State("ws")
		assert.Same(t, first, st.Result)
		v, _ := target.get("a")
		assert.True(t, v.Equal(Number(1)))
	})

	t.Run("MissingSource", func(t *testing.T) {
		e, _, _, _ := testEngine(t, map[string]string{
			wsRoot: `{"extends":"gone.json","settings":{}}`,
		}, wsRoot)
		_, err := e.Rebuild(ctx, "ws")
		var missing *MissingSourceError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, "/ws/gone.json", missing.Path)
		assert.Equal(t, wsRoot, missing.From)
	})

	t.Run("PushFailureKeepsState", func(t *testing.T) {
		e, _, target, _ := testEngine(t, map[string]string{
			wsRoot: `{"settings":{"a":1}}`,
		}, wsRoot)
		target.setErr = errors.New("host unavailable")

		_, err := e.Rebuild(ctx, "ws")
		require.Error(t, err)
		st, _ := e.State("ws")
		assert.Nil(t, st.Result)
	})
}

func TestEnginePrime(t *testing.T) {
	ctx := context.Background()
	e, _, target, _ := testEngine(t, map[string]string{
		wsRoot: `{"settings":{"a":1}}`,
	}, wsRoot)
	chooser := &countingChooser{dest: Destination{Kind: DestDeclined}}
	e.chooser = chooser
	target.set("a", Number(1))
	target.set("host", String("x"))

	res, err := e.Prime(ctx, "ws")
	require.NoError(t, err)
	assert.True(t, res.Owns("a"))
	assert.Zero(t, target.setN, "prime never writes to the live target")

	st, err := e.State("ws")
	require.NoError(t, err)
	assert.Empty(t, st.Baseline)

	report, err := e.Reconcile(ctx, "ws")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExternal, report.Outcome)
	assert.Equal(t, []string{"host"}, chooser.keys)

	t.Run("OwnedDriftFirst", func(t *testing.T) {
		e, store, target, _ := testEngine(t, map[string]string{
			wsRoot: `{"settings":{"a":1}}`,
		}, wsRoot)
		target.set("a", Number(2))

		_, err := e.Prime(ctx, "ws")
		require.NoError(t, err)
		report, err := e.Reconcile(ctx, "ws")
		require.NoError(t, err)
		assert.Equal(t, OutcomeScalar, report.Outcome)
		assert.True(t, readLayer(t, store, wsRoot).Settings["a"].Equal(Number(2)))
	})
}

func TestEngineConcurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("OwnWritesSuppressed", func(t *testing.T) {
		e, _, target, _ := testEngine(t, map[string]string{
			wsRoot: `{"settings":{"a":1}}`,
		}, wsRoot)

		var (
			once   sync.Once
			report *Report
			err    error
		)
		target.onSet = func() {
			once.Do(func() {
				report, err = e.NotifyLiveChange(ctx, "ws")
			})
		}
		_, rerr := e.Rebuild(ctx, "ws")
		require.NoError(t, rerr)

		require.NoError(t, err)
		require.NotNil(t, report)
		assert.Equal(t, OutcomeSuppressed, report.Outcome)
	})

	t.Run("RevertSuppressed", func(t *testing.T) {
		e, _, target, _ := testEngine(t, map[string]string{
			"/shared/base.json": `{"settings":{"arr":["a"]}}`,
			wsRoot:              `{"extends":"../shared/base.json","settings":{}}`,
		}, wsRoot)
		_, err := e.Rebuild(ctx, "ws")
		require.NoError(t, err)

		var outcomes []Outcome
		target.onSet = func() {
			r, err := e.NotifyLiveChange(ctx, "ws")
			if err == nil {
				outcomes = append(outcomes, r.Outcome)
			}
		}
		target.set("arr", Array())
		report, err := e.Reconcile(ctx, "ws")
		require.NoError(t, err)
		assert.Len(t, report.Blocked, 1)
		assert.Equal(t, []Outcome{OutcomeSuppressed}, outcomes)
	})

	t.Run("SerializedPerScope", func(t *testing.T) {
		e, store, target, _ := testEngine(t, map[string]string{
			"/ws/base.json": `{"settings":{"n":0}}`,
			wsRoot:          `{"extends":"base.json","settings":{}}`,
		}, wsRoot)
		_, err := e.Rebuild(ctx, "ws")
		require.NoError(t, err)
		target.set("n", Number(7))

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := e.NotifyLiveChange(ctx, "ws"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("notify failed: %v", err)
		}

		assert.True(t, readLayer(t, store, "/ws/base.json").Settings["n"].Equal(Number(7)))
		st, _ := e.State("ws")
		assert.True(t, st.Result.Settings["n"].Equal(Number(7)))
	})

	t.Run("IndependentScopes", func(t *testing.T) {
		store := NewMemStore()
		target := newMemTarget()
		b := NewBuilder().WithStore(store).WithTarget(target)
		for i := 0; i < 4; i++ {
			root := fmt.Sprintf("/s%d/root.json", i)
			writeLayers(t, store, map[string]string{root: fmt.Sprintf(`{"settings":{"k%d":%d}}`, i, i)})
			b.WithScope(Scope{Name: fmt.Sprintf("s%d", i), Root: root})
		}
		e, err := b.Build()
		require.NoError(t, err)

		var wg sync.WaitGroup
		for _, name := range e.Scopes() {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				_, err := e.Rebuild(ctx, name)
				assert.NoError(t, err)
			}(name)
		}
		wg.Wait()

		all, _ := target.ReadAll(ctx, "")
		assert.Len(t, all, 4)
	})
}

func TestDirBoundary(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		path string
		want bool
	}{
		{"Inside", "/ws", "/ws/root.json", true},
		{"Nested", "/ws", "/ws/team/base.json", true},
		{"Self", "/ws", "/ws", true},
		{"Parent", "/ws", "/shared/base.json", false},
		{"SiblingPrefix", "/ws", "/wsx/base.json", false},
		{"DotDotName", "/ws", "/ws/..hidden.json", true},
		{"Escapes", "/ws", "/ws/../etc/base.json", false},
		{"Empty", "", "/ws/root.json", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DirBoundary(tt.dir).Owns(tt.path))
		})
	}

	t.Run("AllOwned", func(t *testing.T) {
		assert.True(t, AllOwned.Owns("/anything"))
	})

	t.Run("Func", func(t *testing.T) {
		b := BoundaryFunc(func(p string) bool { return p == "/x" })
		assert.True(t, b.Owns("/x"))
		assert.False(t, b.Owns("/y"))
	})
}
