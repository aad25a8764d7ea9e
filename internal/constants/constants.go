// Package constants provides named constants shared by the CLI, the
// configuration layer and the run store.
package constants

// Names of on-disk locations.
const (
	// DirName is the per-user data directory under the home directory.
	DirName = ".bloomcascade"

	// ConfigFileName is the YAML configuration file inside DirName.
	ConfigFileName = "config.yaml"

	// StoreFileName is the default SQLite run store inside DirName.
	StoreFileName = "runs.db"

	// LogDirName is the directory inside DirName that receives events.jsonl.
	LogDirName = "logs"
)

// Environment variables that override configuration values.
const (
	EnvSeed      = "BLOOM_SEED"
	EnvAgents    = "BLOOM_AGENTS"
	EnvWorkers   = "BLOOM_WORKERS"
	EnvLogLevel  = "BLOOM_LOG_LEVEL"
	EnvLogDir    = "BLOOM_LOG_DIR"
	EnvStorePath = "BLOOM_STORE_PATH"
)

// Defaults for command-line operations.
const (
	// DefaultSteps is the number of steps run when none is given.
	DefaultSteps = 100

	// DefaultHorizon is the forecast horizon used when none is given.
	DefaultHorizon = 10

	// MaxHorizon caps forecast horizons requested over MCP or the CLI.
	MaxHorizon = 1000

	// MaxSteps caps the number of steps a single MCP call may run.
	MaxSteps = 100000
)
