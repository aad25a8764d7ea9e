// Package backup exports stored runs to checksummed archive files and
// imports them back into a run store.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/intentsim/bloomcascade/internal/store"
)

// DirName is the archive directory inside the data directory.
const DirName = "backups"

// DefaultDir returns the default archive directory (~/.bloomcascade/backups/).
func DefaultDir() (string, error) {
	dir, err := store.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DirName), nil
}

// Export writes the stored run ref to an archive at path.
func Export(ctx context.Context, runs *store.Store, ref, path string) (*Header, error) {
	run, state, err := runs.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return Write(path, &Archive{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Run:       run,
		State:     state,
	})
}

// Import saves the run in the archive at path as a new stored run. An
// empty name keeps the archived run's name.
func Import(ctx context.Context, runs *store.Store, path, name string) (store.Run, error) {
	a, err := Read(path)
	if err != nil {
		return store.Run{}, err
	}
	if name == "" {
		name = a.Run.Name
	}
	if name == "" {
		return store.Run{}, errors.New("archive has no run name")
	}
	run, err := runs.Save(ctx, name, a.State)
	if err != nil {
		return store.Run{}, fmt.Errorf("failed to import run: %w", err)
	}
	return run, nil
}

// GeneratePath creates a timestamped archive filename for the named run
// in dir.
func GeneratePath(dir, name string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", name, now.UTC().Format("20060102-150405"), Ext))
}

func isArchiveFile(name string) bool {
	return strings.HasSuffix(name, Ext)
}

// CheckPath rejects paths outside the allowed directories. Symlinks in
// the deepest existing ancestor are resolved, so a link inside an allowed
// directory cannot point out of it.
func CheckPath(path string, allowedDirs []string) error {
	if path == "" {
		return errors.New("path is empty")
	}
	if strings.ContainsRune(path, '\x00') {
		return errors.New("path contains null byte")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve path: %w", err)
	}
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return err
	}
	resolved := filepath.Join(dir, filepath.Base(abs))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(allowed)
		if err != nil {
			continue
		}
		base, err := resolveExisting(allowedAbs)
		if err != nil {
			continue
		}
		if resolved == base || strings.HasPrefix(resolved, base+string(os.PathSeparator)) {
			return nil
		}
	}
	return fmt.Errorf("%s is outside the allowed directories", redact(abs))
}

// resolveExisting resolves symlinks on the deepest existing ancestor of
// dir and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve %s", redact(dir))
	}
	resolved, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, filepath.Base(dir)), nil
}

// redact reduces a path to .../<parent>/<basename> for error messages.
func redact(path string) string {
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}
