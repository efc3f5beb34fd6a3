// FILE: lixenwraith/layersync/cmd/layersync/root.go
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lixenwraith/layersync"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	logLevel   string
	boundary   string
	format     string
}

// errConflicts makes the conflicts command exit non-zero without an error message.
var errConflicts = errors.New("conflicts found")

func exitCode(err error) int {
	if errors.Is(err, errConflicts) {
		return 1
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return 2
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "layersync",
		Short: "Merge layered settings files and write live edits back",
		Long: `layersync folds a root settings file and everything it extends into one
set of settings, tracks which file every key and array entry comes from, and
writes changes made to the merged result back into the right layer.

Layer file shape (JSON, YAML or TOML by extension):
  { "extends": ["../shared/base.json"], "settings": { "editor.tabSize": 2 } }

Examples:
  layersync merge .vscode/settings.root.json
  layersync explain .vscode/settings.root.json editor.rulers
  layersync sync .vscode/settings.root.json --live .vscode/settings.json
  layersync watch .vscode/settings.root.json --live .vscode/settings.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configFile, "config", "", "engine options file (toml, yaml or json)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&g.boundary, "boundary", "", `ownership boundary directory, or "all" (default: root config directory)`)
	root.PersistentFlags().StringVarP(&g.format, "format", "f", "json", "output format: json or yaml")

	root.AddCommand(newMergeCmd(g))
	root.AddCommand(newExplainCmd(g))
	root.AddCommand(newConflictsCmd(g))
	root.AddCommand(newSyncCmd(g))
	root.AddCommand(newReconcileCmd(g))
	root.AddCommand(newWatchCmd(g))
	return root
}

// options loads engine options and attaches a stderr logger.
func (g *globalFlags) options(store *layersync.Store) (layersync.Options, error) {
	opts := layersync.DefaultOptions()
	if g.configFile != "" {
		var err error
		if opts, err = layersync.LoadOptionsFile(store, g.configFile); err != nil {
			return opts, err
		}
	}
	if g.logLevel != "" {
		opts.LogLevel = g.logLevel
	}
	opts.Logger = newLogger(os.Stderr, opts.Level())
	return opts, nil
}

func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "layersync",
	})
}

func (g *globalFlags) scope(root string) layersync.Scope {
	s := layersync.Scope{Name: "default", Root: root}
	switch g.boundary {
	case "":
	case "all":
		s.Boundary = layersync.AllOwned
	default:
		s.Boundary = layersync.DirBoundary(g.boundary)
	}
	return s
}

// mergeOnly resolves and merges without touching any live target.
func (g *globalFlags) mergeOnly(root string) (*layersync.MergeResult, error) {
	store := layersync.NewDiskStore()
	opts, err := g.options(store)
	if err != nil {
		return nil, err
	}
	chain, err := layersync.ResolveWithDepth(root, store.Loader(), opts.MaxChainDepth)
	if err != nil {
		return nil, err
	}
	return layersync.Merge(chain), nil
}

// engine builds an engine over the live file with one registered scope.
func (g *globalFlags) engine(root, live string, chooser layersync.DestinationChooser) (*layersync.Engine, layersync.Scope, error) {
	if live == "" {
		return nil, layersync.Scope{}, fmt.Errorf("--live is required")
	}
	store := layersync.NewDiskStore()
	opts, err := g.options(store)
	if err != nil {
		return nil, layersync.Scope{}, err
	}
	scope := g.scope(root)
	sink := layersync.LogSink{Logger: opts.Logger}
	e, err := layersync.NewBuilder().
		WithStore(store).
		WithTarget(layersync.NewFileTarget(store, live)).
		WithChooser(chooser).
		WithDiagnostics(sink).
		WithNotifier(sink).
		WithOptions(opts).
		WithScope(scope).
		Build()
	return e, scope, err
}
