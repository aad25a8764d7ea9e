// Package config provides unified configuration loading for bloomcascade.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/intentsim/bloomcascade/internal/constants"
	"github.com/intentsim/bloomcascade/internal/logging"
	"github.com/intentsim/bloomcascade/internal/phase"
	"github.com/intentsim/bloomcascade/internal/simulation"
	"github.com/intentsim/bloomcascade/internal/store"
	"gopkg.in/yaml.v3"
)

// Config contains all bloomcascade configuration settings.
type Config struct {
	// Simulation holds the engine parameters.
	Simulation simulation.Config `json:"simulation" yaml:"simulation"`

	// Run describes the default run driven by the CLI.
	Run RunConfig `json:"run" yaml:"run"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store contains settings for the SQLite run store.
	Store StoreConfig `json:"store" yaml:"store"`
}

// RunConfig describes a run: how many steps and which phases to enter.
type RunConfig struct {
	// Steps is the number of steps to run. Default: 100.
	Steps int `json:"steps" yaml:"steps"`

	// Blooms lists run-relative bloom steps. When set, a cascade schedule
	// is built and Schedule must be empty.
	Blooms []int `json:"blooms,omitempty" yaml:"blooms,omitempty"`

	// Schedule maps run-relative steps to phase names.
	Schedule map[int]string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "error", "warn", "info" (default),
	// "debug" or "trace". "debug" and above write events.jsonl.
	Level string `json:"level" yaml:"level"`

	// Dir receives events.jsonl. Defaults to ~/.bloomcascade/logs.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// StoreConfig configures the run store.
type StoreConfig struct {
	// Path is the SQLite database file. Defaults to ~/.bloomcascade/runs.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: simulation.DefaultConfig(),
		Run: RunConfig{
			Steps: constants.DefaultSteps,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.bloomcascade/config.yaml.
func DefaultPath() (string, error) {
	dir, err := store.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.ConfigFileName), nil
}

// Load loads configuration from path, or from the default location when
// path is empty, then applies environment variables.
// Order: defaults -> file -> environment variables
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		if p, err := DefaultPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			}
		}
	}
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Unset
// fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Validate checks that the configuration is valid and reports every
// problem found.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Simulation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("simulation: %w", err))
	}
	if c.Run.Steps < 0 {
		errs = append(errs, fmt.Errorf("run: steps must be non-negative, got %d", c.Run.Steps))
	}
	for _, b := range c.Run.Blooms {
		if b < 0 {
			errs = append(errs, fmt.Errorf("run: bloom step must be non-negative, got %d", b))
		}
	}
	if len(c.Run.Blooms) > 0 && len(c.Run.Schedule) > 0 {
		errs = append(errs, errors.New("run: blooms and schedule are mutually exclusive"))
	}
	if _, err := c.Run.PhaseSchedule(); err != nil {
		errs = append(errs, fmt.Errorf("run: %w", err))
	}
	if _, err := logging.LookupLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	return errors.Join(errs...)
}

// PhaseSchedule parses the configured schedule.
func (r RunConfig) PhaseSchedule() (phase.Schedule, error) {
	if len(r.Schedule) == 0 {
		return nil, nil
	}
	s := make(phase.Schedule, len(r.Schedule))
	for step, name := range r.Schedule {
		p, err := phase.ParsePhase(name)
		if err != nil {
			return nil, fmt.Errorf("schedule step %d: %w", step, err)
		}
		s[step] = p
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Schedule returns the effective schedule for the run: a cascade when
// blooms are configured, the explicit schedule otherwise.
func (c *Config) Schedule() (phase.Schedule, error) {
	if len(c.Run.Blooms) > 0 {
		return phase.CascadeSchedule(c.Run.Steps, c.Run.Blooms, c.Simulation.CascadeDelay), nil
	}
	return c.Run.PhaseSchedule()
}

// LogDir returns the configured event-log directory or the default one.
func (c *Config) LogDir() (string, error) {
	if c.Logging.Dir != "" {
		return c.Logging.Dir, nil
	}
	dir, err := store.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.LogDirName), nil
}

// StorePath returns the configured store path or the default one.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := store.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.StoreFileName), nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) error {
	if v := os.Getenv(constants.EnvSeed); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", constants.EnvSeed, err)
		}
		config.Simulation.Seed = n
	}
	if v := os.Getenv(constants.EnvAgents); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", constants.EnvAgents, err)
		}
		config.Simulation.Agents.Count = n
	}
	if v := os.Getenv(constants.EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", constants.EnvWorkers, err)
		}
		config.Simulation.Workers = n
	}
	if v := os.Getenv(constants.EnvLogLevel); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv(constants.EnvLogDir); v != "" {
		config.Logging.Dir = v
	}
	if v := os.Getenv(constants.EnvStorePath); v != "" {
		config.Store.Path = v
	}
	return nil
}
