package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/intentsim/bloomcascade/internal/store"
	"github.com/intentsim/bloomcascade/internal/visualization"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage stored runs",
		Long: `List, inspect, validate, render, archive and delete runs saved in the
run store.

Runs are referenced by id or by name; a name resolves to the newest run
carrying it.`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
		newRunsValidateCmd(),
		newRunsGraphCmd(),
		newRunsExportCmd(),
		newRunsImportCmd(),
		newRunsArchivesCmd(),
	)
	return cmd
}

// withStore loads the config, opens the run store and calls fn.
func withStore(cmd *cobra.Command, fn func(*store.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	runs, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer runs.Close()
	return fn(runs)
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(runs *store.Store) error {
				list, err := runs.List(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					if list == nil {
						list = []store.Run{}
					}
					return writeJSON(cmd, map[string]any{"runs": list, "count": len(list)})
				}

				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No stored runs.")
					return nil
				}
				fmt.Fprintf(out, "%-36s  %-24s  %6s  %-14s  %s\n", "ID", "NAME", "STEP", "PHASE", "UPDATED")
				for _, r := range list {
					fmt.Fprintf(out, "%-36s  %-24s  %6d  %-14s  %s\n",
						r.ID, r.Name, r.Step, r.Phase, r.UpdatedAt.Local().Format(time.DateTime))
				}
				return nil
			})
		},
	}
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run>",
		Short: "Show a stored run and its latest metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(runs *store.Store) error {
				ctx := cmd.Context()
				run, err := runs.Get(ctx, args[0])
				if err != nil {
					return err
				}
				history, err := runs.History(ctx, run.ID)
				if err != nil {
					return err
				}

				if jsonOutput(cmd) {
					result := map[string]any{"run": run, "snapshots": len(history)}
					if n := len(history); n > 0 {
						result["latest"] = history[n-1]
					}
					return writeJSON(cmd, result)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:         %s\n", run.ID)
				fmt.Fprintf(out, "Name:        %s\n", run.Name)
				fmt.Fprintf(out, "Seed:        %d\n", run.Seed)
				fmt.Fprintf(out, "Step:        %d\n", run.Step)
				fmt.Fprintf(out, "Phase:       %s\n", run.Phase)
				fmt.Fprintf(out, "Agents:      %d\n", run.Agents)
				fmt.Fprintf(out, "Connections: %d\n", run.Connections)
				fmt.Fprintf(out, "Created:     %s\n", run.CreatedAt.Local().Format(time.DateTime))
				fmt.Fprintf(out, "Updated:     %s\n", run.UpdatedAt.Local().Format(time.DateTime))
				fmt.Fprintf(out, "Snapshots:   %d\n", len(history))
				if n := len(history); n > 0 {
					fmt.Fprintln(out)
					printSnapshots(out, history[n-1:], 1)
				}
				return nil
			})
		},
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run>",
		Short: "Delete a stored run and its snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(runs *store.Store) error {
				ctx := cmd.Context()
				run, err := runs.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if err := runs.Delete(ctx, run.ID); err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd, map[string]string{"status": "deleted", "id": run.ID, "name": run.Name})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s (%s)\n", run.Name, run.ID)
				return nil
			})
		},
	}
}

func newRunsValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <run>",
		Short: "Check a stored run for consistency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(runs *store.Store) error {
				issues, err := runs.ValidateRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				if jsonOutput(cmd) {
					if issues == nil {
						issues = []store.ValidationError{}
					}
					if err := writeJSON(cmd, map[string]any{"valid": len(issues) == 0, "issues": issues}); err != nil {
						return err
					}
				} else if len(issues) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Run is consistent.")
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Found %d issue(s):\n", len(issues))
					for _, issue := range issues {
						fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", issue)
					}
				}
				if len(issues) > 0 {
					return errors.New("run failed validation")
				}
				return nil
			})
		},
	}
}

func newRunsGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <run>",
		Short: "Render the connectivity graph of a stored run",
		Long: `Render the agents and connections of a stored run.

Formats:
  dot   Graphviz DOT with agents pinned at their positions (render with neato -n)
  json  nodes and edges arrays with degrees

Examples:
  bloomcascade runs graph my-run | neato -n -Tsvg > graph.svg
  bloomcascade runs graph my-run --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatStr, _ := cmd.Flags().GetString("format")
			format, err := visualization.ParseFormat(formatStr)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				format = visualization.FormatJSON
			}

			return withStore(cmd, func(runs *store.Store) error {
				_, state, err := runs.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if format == visualization.FormatJSON {
					return writeJSON(cmd, visualization.RenderJSON(state.Agents, state.Connections))
				}
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(state.Agents, state.Connections))
				return nil
			})
		},
	}
	cmd.Flags().String("format", "dot", "output format: dot, json")
	return cmd
}
