// FILE: lixenwraith/layersync/example/main.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/lixenwraith/layersync"
)

// Layout used by the walkthrough. shared/ sits outside the workspace
// directory, so the workspace does not own its array entries.
const (
	sharedBase = "/repo/shared/base.json"
	workBase   = "/repo/ws/base.json"
	workRoot   = "/repo/ws/settings.root.json"
	liveFile   = "/repo/ws/settings.json"
)

var files = map[string]string{
	sharedBase: `{
  "settings": {
    "files.exclude": ["node_modules"],
    "editor.tabSize": 4
  }
}`,
	workBase: `{
  "extends": "../shared/base.json",
  "settings": {
    "editor.rulers": [80],
    "editor.wordWrap": "off"
  }
}`,
	workRoot: `{
  "extends": ["base.json"],
  "settings": {
    "files.exclude": ["dist"],
    "editor.tabSize": 2
  }
}`,
}

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{Level: log.InfoLevel, Prefix: "example"})
	ctx := context.Background()

	store := layersync.NewMemStore()
	for path, content := range files {
		if err := store.WriteFile(path, []byte(content)); err != nil {
			logger.Fatal("seed layer", "path", path, "err", err)
		}
	}

	sink := layersync.LogSink{Logger: logger}
	engine, err := layersync.NewBuilder().
		WithStore(store).
		WithTarget(layersync.NewFileTarget(store, liveFile)).
		WithChooser(layersync.CaptureChooser).
		WithDiagnostics(sink).
		WithNotifier(sink).
		WithLogger(logger).
		WithScope(layersync.Scope{Name: "ws", Root: workRoot, Boundary: layersync.DirBoundary("/repo/ws")}).
		Build()
	if err != nil {
		logger.Fatal("build engine", "err", err)
	}

	// PART 1: merge and push
	res, err := engine.Rebuild(ctx, "ws")
	if err != nil {
		logger.Fatal("rebuild", "err", err)
	}
	fmt.Println(res.Explain("files.exclude"))
	fmt.Println(res.Explain("editor.tabSize"))
	printFile(store, liveFile)

	// PART 2: add an exclude in the live file; it lands in the capture layer
	editLive(store, `{"files.exclude": ["node_modules", "dist", "coverage"], "editor.tabSize": 2, "editor.rulers": [80], "editor.wordWrap": "off"}`)
	report := reconcile(ctx, engine, logger)
	fmt.Printf("array edit: %s, %d writes\n", report.Outcome, report.Writes())
	capturePath, _ := engine.CapturePath("ws")
	printFile(store, capturePath)
	printFile(store, workRoot)

	// the capture layer sits before the root in the chain, so the merged
	// order is now node_modules, coverage, dist
	rebuild(ctx, engine, logger)
	printFile(store, liveFile)

	// PART 3: drop an exclude that only the shared layer defines; refused and reverted
	editLive(store, `{"files.exclude": ["coverage", "dist"], "editor.tabSize": 2, "editor.rulers": [80], "editor.wordWrap": "off"}`)
	report = reconcile(ctx, engine, logger)
	for _, b := range report.Blocked {
		fmt.Printf("blocked: %s from %s (defined in %s)\n", b.Value, b.Key, b.SourceFile)
	}
	printFile(store, liveFile)

	// PART 4: tabSize is set by two layers, so the edit is not written back
	editLive(store, `{"files.exclude": ["node_modules", "coverage", "dist"], "editor.tabSize": 8, "editor.rulers": [80], "editor.wordWrap": "off"}`)
	report = reconcile(ctx, engine, logger)
	fmt.Printf("ambiguous keys: %v\n", report.Ambiguous)
	rebuild(ctx, engine, logger)
	printFile(store, liveFile)

	// PART 5: wordWrap has a single owner, the edit goes straight into ws/base.json
	editLive(store, `{"files.exclude": ["node_modules", "coverage", "dist"], "editor.tabSize": 2, "editor.rulers": [80], "editor.wordWrap": "on"}`)
	report = reconcile(ctx, engine, logger)
	fmt.Printf("owned edit: %s, written %v\n", report.Outcome, report.Written)
	printFile(store, workBase)
}

func rebuild(ctx context.Context, e *layersync.Engine, logger *log.Logger) {
	if _, err := e.Rebuild(ctx, "ws"); err != nil {
		logger.Fatal("rebuild", "err", err)
	}
}

func reconcile(ctx context.Context, e *layersync.Engine, logger *log.Logger) *layersync.Report {
	report, err := e.NotifyLiveChange(ctx, "ws")
	if err != nil {
		logger.Fatal("reconcile", "err", err)
	}
	if err := report.Err(); err != nil {
		logger.Warn("reconcile finished with failures", "err", err)
	}
	return report
}

func editLive(store *layersync.Store, content string) {
	if err := store.WriteFile(liveFile, []byte(content)); err != nil {
		log.Fatal("edit live file", "err", err)
	}
}

func printFile(store *layersync.Store, path string) {
	data, err := store.ReadFile(path)
	if err != nil {
		fmt.Printf("--- %s: %v\n", path, err)
		return
	}
	fmt.Printf("--- %s\n%s\n", path, data)
}
