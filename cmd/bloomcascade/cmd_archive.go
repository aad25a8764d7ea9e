package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/intentsim/bloomcascade/internal/backup"
	"github.com/intentsim/bloomcascade/internal/sanitize"
	"github.com/intentsim/bloomcascade/internal/store"
)

// archiveDirs returns the directories archives may be written to or read
// from: the default archive directory and the working directory.
func archiveDirs() ([]string, error) {
	def, err := backup.DefaultDir()
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return []string{def, cwd}, nil
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run>",
		Short: "Export a stored run to a compressed archive",
		Long: `Write a stored run, its full engine state and snapshot history to a
checksummed archive. Without --output the archive goes to
~/.bloomcascade/backups/ with a timestamped name.

Examples:
  bloomcascade runs export my-run
  bloomcascade runs export my-run --output ./my-run.bloom.gz
  bloomcascade runs export my-run --keep 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			keep, _ := cmd.Flags().GetInt("keep")
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}

			return withStore(cmd, func(runs *store.Store) error {
				ctx := cmd.Context()
				run, err := runs.Get(ctx, args[0])
				if err != nil {
					return err
				}

				dir, err := backup.DefaultDir()
				if err != nil {
					return err
				}
				if output == "" {
					output = backup.GeneratePath(dir, run.Name, time.Now())
				} else {
					allowed, err := archiveDirs()
					if err != nil {
						return err
					}
					if err := backup.CheckPath(output, allowed); err != nil {
						return fmt.Errorf("invalid output path: %w", err)
					}
				}

				header, err := backup.Export(ctx, runs, run.ID, output)
				if err != nil {
					return fmt.Errorf("export failed: %w", err)
				}

				var deleted []string
				if keep > 0 {
					deleted, err = backup.ApplyRetention(filepath.Dir(output), &backup.CountPolicy{MaxCount: keep})
					if err != nil {
						return fmt.Errorf("retention failed: %w", err)
					}
				}

				if jsonOutput(cmd) {
					return writeJSON(cmd, map[string]any{
						"path":    output,
						"header":  header,
						"deleted": len(deleted),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Exported run %s at step %d to %s\n", run.Name, header.Step, output)
				if len(deleted) > 0 {
					fmt.Fprintf(out, "Removed %d old archive(s)\n", len(deleted))
				}
				return nil
			})
		},
	}
	cmd.Flags().String("output", "", "archive path (default: timestamped file in ~/.bloomcascade/backups/)")
	cmd.Flags().Int("keep", 0, "after exporting, keep only the N newest archives in the output directory")
	return cmd
}

func newRunsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an archive as a new stored run",
		Long: `Verify an archive's checksum and save its run as a new stored run.
The imported run keeps its archived name unless --name is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("name")
			name := sanitize.RunName(raw)
			if raw != "" && name == "" {
				return fmt.Errorf("invalid run name %q", raw)
			}

			allowed, err := archiveDirs()
			if err != nil {
				return err
			}
			if err := backup.CheckPath(args[0], allowed); err != nil {
				return fmt.Errorf("invalid archive path: %w", err)
			}

			return withStore(cmd, func(runs *store.Store) error {
				run, err := backup.Import(cmd.Context(), runs, args[0], name)
				if err != nil {
					return fmt.Errorf("import failed: %w", err)
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd, map[string]any{"status": "imported", "run": run})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported run %s (%s) at step %d\n", run.Name, run.ID, run.Step)
				return nil
			})
		},
	}
	cmd.Flags().String("name", "", "name for the imported run")
	return cmd
}

func newRunsArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "List run archives and apply retention",
		Long: `List the archives in ~/.bloomcascade/backups/, newest first. With any of
--keep, --max-age or --max-size, archives outside every limit are deleted.

Examples:
  bloomcascade runs archives
  bloomcascade runs archives --keep 10 --max-age 30d --max-size 500MB`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")
			maxSize, _ := cmd.Flags().GetString("max-size")

			var policy backup.AllPolicy
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}
			if keep > 0 {
				policy = append(policy, &backup.CountPolicy{MaxCount: keep})
			}
			if maxAge != "" {
				d, err := backup.ParseDuration(maxAge)
				if err != nil {
					return err
				}
				policy = append(policy, &backup.AgePolicy{MaxAge: d})
			}
			if maxSize != "" {
				n, err := backup.ParseSize(maxSize)
				if err != nil {
					return err
				}
				policy = append(policy, &backup.SizePolicy{MaxTotalBytes: n})
			}

			dir, err := backup.DefaultDir()
			if err != nil {
				return err
			}
			var deleted []string
			if len(policy) > 0 {
				if deleted, err = backup.ApplyRetention(dir, policy); err != nil {
					return err
				}
			}
			archives, err := backup.ListArchives(dir)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				type entry struct {
					Path      string    `json:"path"`
					Size      int64     `json:"size"`
					CreatedAt time.Time `json:"created_at"`
					Name      string    `json:"name,omitempty"`
					Step      int       `json:"step"`
					Error     string    `json:"error,omitempty"`
				}
				entries := make([]entry, 0, len(archives))
				for _, a := range archives {
					e := entry{Path: a.Path, Size: a.Size, CreatedAt: a.CreatedAt, Name: a.Name, Step: a.Step}
					if a.Err != nil {
						e.Error = a.Err.Error()
					}
					entries = append(entries, e)
				}
				return writeJSON(cmd, map[string]any{"archives": entries, "count": len(entries), "deleted": len(deleted)})
			}

			out := cmd.OutOrStdout()
			if len(deleted) > 0 {
				fmt.Fprintf(out, "Removed %d archive(s)\n", len(deleted))
			}
			if len(archives) == 0 {
				fmt.Fprintln(out, "No archives.")
				return nil
			}
			fmt.Fprintf(out, "%-24s  %6s  %10s  %-19s  %s\n", "NAME", "STEP", "SIZE", "CREATED", "FILE")
			for _, a := range archives {
				name := a.Name
				if a.Err != nil {
					name = "(unreadable)"
				}
				fmt.Fprintf(out, "%-24s  %6d  %10d  %-19s  %s\n",
					name, a.Step, a.Size, a.CreatedAt.Local().Format(time.DateTime), filepath.Base(a.Path))
			}
			return nil
		},
	}
	cmd.Flags().Int("keep", 0, "keep at most N archives")
	cmd.Flags().String("max-age", "", "delete archives older than this (e.g. 30d, 2w, 720h)")
	cmd.Flags().String("max-size", "", "keep the newest archives within this total size (e.g. 500MB)")
	return cmd
}
