package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/intentsim/bloomcascade/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bloomcascade configuration",
		Long: `View, validate and initialize bloomcascade configuration.

Configuration is read from ~/.bloomcascade/config.yaml unless --config is
given. BLOOM_* environment variables override file values.

Examples:
  bloomcascade config show                 # Show the effective settings
  bloomcascade config validate             # Check the settings
  bloomcascade config init                 # Write the defaults`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigValidateCmd(),
		newConfigInitCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd, cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd)
			if err != nil {
				return err
			}
			verr := cfg.Validate()

			if jsonOutput(cmd) {
				problems := []string{}
				for _, e := range flattenErrors(verr) {
					problems = append(problems, e.Error())
				}
				if err := writeJSON(cmd, map[string]any{
					"valid":    verr == nil,
					"problems": problems,
				}); err != nil {
					return err
				}
			} else if verr == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration is invalid:")
				for _, e := range flattenErrors(verr) {
					fmt.Fprintf(cmd.OutOrStdout(), "  - %v\n", e)
				}
			}
			if verr != nil {
				return errors.New("invalid configuration")
			}
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				path = p
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := saveConfig(path, config.Default()); err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd, map[string]string{"status": "initialized", "path": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}

// saveConfig writes cfg as YAML to path.
func saveConfig(path string, cfg *config.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// flattenErrors unwraps errors.Join trees into their leaves.
func flattenErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flattenErrors(e)...)
		}
		return out
	}
	return []error{err}
}
