package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/intentsim/bloomcascade/internal/constants"
)

// DataDir returns the per-user data directory.
// On Unix: ~/.bloomcascade
// On Windows: %USERPROFILE%\.bloomcascade
func DataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName), nil
}

// DefaultPath returns the default database path inside DataDir.
func DefaultPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.StoreFileName), nil
}

// ensureParent creates the directory holding path if it doesn't exist.
func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}
	return nil
}
