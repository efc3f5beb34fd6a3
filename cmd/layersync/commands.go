// FILE: lixenwraith/layersync/cmd/layersync/commands.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lixenwraith/layersync"
)

func newMergeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <root>",
		Short: "Print the merged settings of a root config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := g.mergeOnly(args[0])
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), g.format, res.Settings)
		},
	}
}

func newExplainCmd(g *globalFlags) *cobra.Command {
	var text bool

	cmd := &cobra.Command{
		Use:   "explain <root> [key...]",
		Short: "Show which layer defines each key",
		Long: `Show the winning file, the overridden files and, for arrays, the file
behind every index range. Without keys every merged key is listed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := g.mergeOnly(args[0])
			if err != nil {
				return err
			}
			keys := args[1:]
			if len(keys) == 0 {
				keys = res.OwnedKeys()
			}

			if text {
				for _, k := range keys {
					fmt.Fprint(cmd.OutOrStdout(), res.Explain(k))
				}
				return nil
			}

			views := make([]provenanceView, 0, len(keys))
			for _, k := range keys {
				prov, ok := res.Provenance[k]
				if !ok {
					return fmt.Errorf("key %q is not defined by any layer", k)
				}
				views = append(views, provenanceView{
					Key:       k,
					Value:     prov.WinnerValue,
					Winner:    prov.Winner,
					Overrides: prov.Overrides,
					Segments:  prov.Segments,
				})
			}
			return printValue(cmd.OutOrStdout(), g.format, views)
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "plain text instead of json/yaml")
	return cmd
}

func newConflictsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts <root>",
		Short: "List keys defined by more than one layer (exit 1 if any)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := g.mergeOnly(args[0])
			if err != nil {
				return err
			}
			conflicts := res.Conflicts
			if conflicts == nil {
				conflicts = []layersync.Conflict{}
			}
			if err := printValue(cmd.OutOrStdout(), g.format, conflicts); err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return errConflicts
			}
			return nil
		},
	}
}

func newSyncCmd(g *globalFlags) *cobra.Command {
	var live string

	cmd := &cobra.Command{
		Use:   "sync <root>",
		Short: "Write the merged settings into a live JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, scope, err := g.engine(args[0], live, layersync.DeclineChooser)
			if err != nil {
				return err
			}
			res, err := e.Rebuild(cmd.Context(), scope.Name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d keys from %d layers into %s\n",
				len(res.Settings), len(res.Chain.Files), live)
			return nil
		},
	}
	cmd.Flags().StringVar(&live, "live", "", "live settings file (flat JSON object)")
	return cmd
}

func newReconcileCmd(g *globalFlags) *cobra.Command {
	var (
		live      string
		captureTo string
		capture   bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile <root>",
		Short: "Write edits made in the live file back into the layers",
		Long: `Compare the live file with the merged layers and write the difference
back: array entries added live go to the capture file, removed entries are
dropped from the layer that contributed them, changed values are written
into their single owning layer, and new keys are captured.

New keys are left alone unless --capture (capture file) or --capture-to
(another layer, created if missing) is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chooser := layersync.DeclineChooser
			switch {
			case capture:
				chooser = layersync.CaptureChooser
			case captureTo != "":
				chooser = staticChooser(captureTo)
			}

			e, scope, err := g.engine(args[0], live, chooser)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			// the layers as they are on disk are the reference point for drift
			if _, err := e.Prime(ctx, scope.Name); err != nil {
				return err
			}
			report, err := e.Reconcile(ctx, scope.Name)
			if err != nil {
				return err
			}
			if err := printValue(cmd.OutOrStdout(), g.format, viewReport(report)); err != nil {
				return err
			}
			return report.Err()
		},
	}
	cmd.Flags().StringVar(&live, "live", "", "live settings file (flat JSON object)")
	cmd.Flags().StringVar(&captureTo, "capture-to", "", "layer receiving new keys, relative to the root config")
	cmd.Flags().BoolVar(&capture, "capture", false, "capture new keys into the capture file")
	return cmd
}

// staticChooser routes captures to one named layer, creating it if needed.
func staticChooser(name string) layersync.DestinationChooser {
	return layersync.ChooserFunc(func(_ context.Context, _ []string, existing []string) (layersync.Destination, error) {
		for _, n := range existing {
			if n == name {
				return layersync.Destination{Kind: layersync.DestExisting, Name: name}, nil
			}
		}
		return layersync.Destination{Kind: layersync.DestCreate, Name: name}, nil
	})
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var (
		live    string
		capture bool
	)

	cmd := &cobra.Command{
		Use:   "watch <root>",
		Short: "Keep the live file and the layers in sync until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chooser := layersync.DeclineChooser
			if capture {
				chooser = layersync.CaptureChooser
			}
			e, scope, err := g.engine(args[0], live, chooser)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := e.Rebuild(ctx, scope.Name); err != nil {
				return err
			}

			w, err := layersync.NewWatcher(e, layersync.DefaultWatchOptions())
			if err != nil {
				return err
			}
			if err := w.WatchLive(scope.Name, live); err != nil {
				return err
			}

			events := w.Subscribe()
			go func() {
				for ev := range events {
					if ev.Err != nil {
						continue // already logged by the watcher
					}
					if ev.Report != nil && ev.Report.Outcome != layersync.OutcomeNoOp {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d writes)\n",
							ev.Scope, ev.Report.Outcome, ev.Report.Writes())
					}
				}
			}()

			if err := w.Start(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&live, "live", "", "live settings file (flat JSON object)")
	cmd.Flags().BoolVar(&capture, "capture", false, "capture new live keys into the capture file")
	return cmd
}
