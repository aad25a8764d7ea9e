package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ArchiveInfo describes one archive file on disk.
type ArchiveInfo struct {
	Path      string
	Size      int64
	CreatedAt time.Time
	RunID     string
	Name      string
	Step      int
	// Err is set when the header could not be read; CreatedAt then falls
	// back to the file's modification time.
	Err error
}

// Policy decides which archives to keep. Apply receives archives sorted
// newest first.
type Policy interface {
	Apply(archives []ArchiveInfo) (keep []ArchiveInfo)
}

// CountPolicy keeps the N most recent archives.
type CountPolicy struct {
	MaxCount int
}

func (p *CountPolicy) Apply(archives []ArchiveInfo) []ArchiveInfo {
	if len(archives) <= p.MaxCount {
		return archives
	}
	return archives[:p.MaxCount]
}

// AgePolicy keeps archives created within MaxAge of Now.
type AgePolicy struct {
	MaxAge time.Duration
	Now    func() time.Time
}

func (p *AgePolicy) Apply(archives []ArchiveInfo) []ArchiveInfo {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []ArchiveInfo
	for _, a := range archives {
		if a.CreatedAt.After(cutoff) {
			keep = append(keep, a)
		}
	}
	return keep
}

// SizePolicy keeps archives until their total size would exceed
// MaxTotalBytes. The newest archive is always kept.
type SizePolicy struct {
	MaxTotalBytes int64
}

func (p *SizePolicy) Apply(archives []ArchiveInfo) []ArchiveInfo {
	var keep []ArchiveInfo
	var total int64
	for _, a := range archives {
		if total+a.Size > p.MaxTotalBytes && len(keep) > 0 {
			break
		}
		keep = append(keep, a)
		total += a.Size
	}
	return keep
}

// AllPolicy keeps an archive only if every sub-policy keeps it.
type AllPolicy []Policy

func (p AllPolicy) Apply(archives []ArchiveInfo) []ArchiveInfo {
	keep := archives
	for _, policy := range p {
		keep = policy.Apply(keep)
	}
	return keep
}

// ListArchives scans dir for archive files and returns them sorted newest
// first. A missing directory yields no archives.
func ListArchives(dir string) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []ArchiveInfo
	for _, e := range entries {
		if e.IsDir() || !isArchiveFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		a := ArchiveInfo{
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		}
		if h, err := ReadHeader(a.Path); err != nil {
			a.Err = err
		} else {
			a.CreatedAt, a.RunID, a.Name, a.Step = h.CreatedAt, h.RunID, h.Name, h.Step
		}
		archives = append(archives, a)
	}

	sort.SliceStable(archives, func(i, j int) bool {
		if !archives[i].CreatedAt.Equal(archives[j].CreatedAt) {
			return archives[i].CreatedAt.After(archives[j].CreatedAt)
		}
		return archives[i].Path > archives[j].Path
	})
	return archives, nil
}

// ApplyRetention deletes the archives in dir that policy does not keep.
func ApplyRetention(dir string, policy Policy) (deleted []string, err error) {
	archives, err := ListArchives(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool)
	for _, a := range policy.Apply(archives) {
		keep[a.Path] = true
	}
	for _, a := range archives {
		if keep[a.Path] {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(a.Path), err)
		}
		deleted = append(deleted, a.Path)
	}
	return deleted, nil
}

// ParseDuration parses durations like "30d", "2w" or "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}

// ParseSize parses sizes like "100MB", "1GB" or "500KB" into bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	// Longest suffix first so "MB" is not read as "B".
	suffixes := []struct {
		suffix     string
		multiplier int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, ss := range suffixes {
		if !strings.HasSuffix(s, ss.suffix) {
			continue
		}
		num, err := strconv.ParseInt(strings.TrimSuffix(s, ss.suffix), 10, 64)
		if err != nil || num < 0 {
			return 0, fmt.Errorf("invalid size: %q", s)
		}
		return num * ss.multiplier, nil
	}
	return 0, fmt.Errorf("invalid size: %q (expected suffix: B, KB, MB, GB)", s)
}
