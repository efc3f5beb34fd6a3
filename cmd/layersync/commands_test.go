// FILE: lixenwraith/layersync/cmd/layersync/commands_test.go
package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// run executes the root command and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func stringsOf(r gjson.Result) []string {
	var out []string
	for _, e := range r.Array() {
		out = append(out, e.String())
	}
	return out
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func workspace(t *testing.T) (root, live string) {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"shared/base.json": `{"settings":{"files.exclude":["node_modules"],"editor.tabSize":4}}`,
		"ws/base.json":     `{"settings":{"editor.wordWrap":"off"}}`,
		"ws/root.json":     `{"extends":["../shared/base.json","base.json"],"settings":{"files.exclude":["dist"],"editor.tabSize":2}}`,
	})
	return filepath.Join(dir, "ws", "root.json"), filepath.Join(dir, "live", "settings.json")
}

func TestCommands(t *testing.T) {
	t.Run("Merge", func(t *testing.T) {
		root, _ := workspace(t)
		out, err := run(t, "merge", root)
		require.NoError(t, err)
		assert.Equal(t, []string{"node_modules", "dist"}, stringsOf(gjson.Get(out, `files\.exclude`)))
		assert.Equal(t, int64(2), gjson.Get(out, `editor\.tabSize`).Int())
	})

	t.Run("MergeYAML", func(t *testing.T) {
		root, _ := workspace(t)
		out, err := run(t, "merge", root, "-f", "yaml")
		require.NoError(t, err)
		assert.Contains(t, out, "editor.tabSize: 2")
		assert.Contains(t, out, "- node_modules")
	})

	t.Run("Explain", func(t *testing.T) {
		root, _ := workspace(t)
		out, err := run(t, "explain", root, "editor.tabSize")
		require.NoError(t, err)
		views := gjson.Parse(out).Array()
		require.Len(t, views, 1)
		assert.Equal(t, root, views[0].Get("winner").String())
		assert.Len(t, views[0].Get("overrides").Array(), 1)

		_, err = run(t, "explain", root, "no.such.key")
		assert.Error(t, err)
	})

	t.Run("Conflicts", func(t *testing.T) {
		root, _ := workspace(t)
		out, err := run(t, "conflicts", root)
		assert.True(t, errors.Is(err, errConflicts))
		assert.Equal(t, 1, exitCode(err))
		assert.Equal(t, "editor.tabSize", gjson.Get(out, "0.key").String())
	})

	t.Run("SyncThenReconcile", func(t *testing.T) {
		root, live := workspace(t)
		_, err := run(t, "sync", root, "--live", live)
		require.NoError(t, err)
		data, err := os.ReadFile(live)
		require.NoError(t, err)
		assert.Equal(t, "off", gjson.GetBytes(data, `editor\.wordWrap`).String())

		writeFiles(t, filepath.Dir(live), map[string]string{
			"settings.json": `{"files.exclude":["node_modules","dist"],"editor.tabSize":2,"editor.wordWrap":"on"}`,
		})
		out, err := run(t, "reconcile", root, "--live", live)
		require.NoError(t, err)
		assert.Equal(t, "scalar", gjson.Get(out, "outcome").String())

		base, err := os.ReadFile(filepath.Join(filepath.Dir(root), "base.json"))
		require.NoError(t, err)
		assert.Equal(t, "on", gjson.GetBytes(base, `settings.editor\.wordWrap`).String())
	})

	t.Run("ReconcileCaptureTo", func(t *testing.T) {
		root, live := workspace(t)
		_, err := run(t, "sync", root, "--live", live)
		require.NoError(t, err)

		writeFiles(t, filepath.Dir(live), map[string]string{
			"settings.json": `{"files.exclude":["node_modules","dist"],"editor.tabSize":2,"editor.wordWrap":"off","terminal.font":"mono"}`,
		})
		out, err := run(t, "reconcile", root, "--live", live, "--capture-to", "personal.json")
		require.NoError(t, err)
		assert.Equal(t, "external", gjson.Get(out, "outcome").String())

		personal, err := os.ReadFile(filepath.Join(filepath.Dir(root), "personal.json"))
		require.NoError(t, err)
		assert.Equal(t, "mono", gjson.GetBytes(personal, `settings.terminal\.font`).String())
	})

	t.Run("BlockedRemoval", func(t *testing.T) {
		root, live := workspace(t)
		_, err := run(t, "sync", root, "--live", live)
		require.NoError(t, err)

		writeFiles(t, filepath.Dir(live), map[string]string{
			"settings.json": `{"files.exclude":["dist"],"editor.tabSize":2,"editor.wordWrap":"off"}`,
		})
		out, err := run(t, "reconcile", root, "--live", live)
		require.NoError(t, err)
		assert.Equal(t, "node_modules", gjson.Get(out, "blocked.0.value").String())

		data, err := os.ReadFile(live)
		require.NoError(t, err)
		assert.Equal(t, []string{"node_modules", "dist"}, stringsOf(gjson.GetBytes(data, `files\.exclude`)))
	})

	t.Run("LiveRequired", func(t *testing.T) {
		root, _ := workspace(t)
		_, err := run(t, "sync", root)
		assert.Error(t, err)
		assert.Equal(t, 2, exitCode(err))
	})
}
