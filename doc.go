// File: lixenwraith/layersync/doc.go

// Package layersync merges layered settings files into one live settings
// target and writes edits made to that target back into the right layer.
//
// A layer is a JSON, YAML or TOML file of the shape
//
//	{ "extends": ["../shared/base.json"], "settings": { "editor.rulers": [80] } }
//
// A root layer and everything it extends form a chain, base first. Merging
// folds the chain: arrays defined by several layers are concatenated in chain
// order, any other value is replaced by the later layer. Every merged key
// keeps its provenance: the winning file, the files it overrode and, for
// arrays, which file contributed each index range.
//
// Features:
//   - Extends resolution with cycle and missing-file detection
//   - Array append and scalar replace with per-key provenance
//   - Conflict reporting for keys set by several layers
//   - Write-back of live edits: array additions go to a capture layer,
//     array removals go to the contributing layer, scalar edits go to the
//     single owning layer
//   - All-or-nothing array write-back when a removal would touch a layer
//     outside the scope's ownership boundary
//   - Capture of new live keys into a chosen layer
//   - In-place JSON edits that keep formatting, comment-preserving YAML edits
//   - fsnotify based watcher with debounce
//
// Quick Start:
//
//	store := layersync.NewDiskStore()
//	engine, err := layersync.NewBuilder().
//	    WithStore(store).
//	    WithTarget(layersync.NewFileTarget(store, ".vscode/settings.json")).
//	    WithScope(layersync.Scope{Name: "workspace", Root: ".vscode/settings.root.json"}).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// push merged layers to the live file
//	if _, err := engine.Rebuild(ctx, "workspace"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// later, after the live file was edited
//	report, err := engine.NotifyLiveChange(ctx, "workspace")
//
// Thread Safety:
// An Engine is safe for concurrent use. Calls that touch the same scope are
// serialized; notifications raised by the engine's own live writes are
// suppressed.
package layersync
