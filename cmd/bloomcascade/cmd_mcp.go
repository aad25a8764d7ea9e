package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/intentsim/bloomcascade/internal/mcp"
	"github.com/intentsim/bloomcascade/internal/simulation"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve the simulation over the Model Context Protocol on stdio",
		Long: `Start an MCP server on stdin/stdout that exposes the simulation as tools:
stepping and running schedules, triggering blooms, forecasting, trajectory
classification and the run store.

Logs go to stderr; tool calls are audited to audit.jsonl in the log
directory.

Examples:
  bloomcascade mcp-server
  bloomcascade mcp-server --from first-cascade`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, events := newLoggers(cmd, cfg)
			defer events.Close()

			runs, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer runs.Close()

			var (
				engine *simulation.Engine
				runID  string
			)
			if from, _ := cmd.Flags().GetString("from"); from != "" {
				run, restored, err := loadEngine(cmd, runs, from)
				if err != nil {
					return err
				}
				engine, runID = restored, run.ID
			} else {
				engine, err = simulation.New(cfg.Simulation)
				if err != nil {
					return fmt.Errorf("failed to create engine: %w", err)
				}
			}
			engine.SetLogger(logger, events)

			auditDir, err := cfg.LogDir()
			if err != nil {
				logger.Warn("audit log disabled", "error", err)
				auditDir = ""
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "bloomcascade",
				Version:  version,
				Engine:   engine,
				Store:    runs,
				RunID:    runID,
				AuditDir: auditDir,
				Logger:   logger,
				Events:   events,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			logger.Info("mcp server starting", "agents", len(engine.Agents()), "step", engine.CurrentStep(), "store", runs.Path())
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().String("from", "", "Start from a stored run (id or name)")
	return cmd
}
