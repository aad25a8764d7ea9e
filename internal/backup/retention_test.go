package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/intentsim/bloomcascade/internal/store"
)

func infos(n int, size int64) []ArchiveInfo {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]ArchiveInfo, n)
	for i := range out {
		out[i] = ArchiveInfo{
			Path:      filepath.Join("/archives", string(rune('a'+i))+Ext),
			Size:      size,
			CreatedAt: base.Add(-time.Duration(i) * 24 * time.Hour),
		}
	}
	return out
}

func TestCountPolicy(t *testing.T) {
	if got := (&CountPolicy{MaxCount: 3}).Apply(infos(5, 1)); len(got) != 3 {
		t.Errorf("kept %d, want 3", len(got))
	}
	if got := (&CountPolicy{MaxCount: 10}).Apply(infos(2, 1)); len(got) != 2 {
		t.Errorf("kept %d, want 2", len(got))
	}
}

func TestAgePolicy(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &AgePolicy{MaxAge: 48 * time.Hour, Now: func() time.Time { return now }}
	got := p.Apply(infos(5, 1))
	if len(got) != 2 {
		t.Errorf("kept %d, want 2", len(got))
	}
}

func TestSizePolicy(t *testing.T) {
	got := (&SizePolicy{MaxTotalBytes: 250}).Apply(infos(5, 100))
	if len(got) != 2 {
		t.Errorf("kept %d, want 2", len(got))
	}
	// The newest archive survives even when it alone is too large.
	got = (&SizePolicy{MaxTotalBytes: 10}).Apply(infos(3, 100))
	if len(got) != 1 {
		t.Errorf("kept %d, want 1", len(got))
	}
}

func TestAllPolicy(t *testing.T) {
	p := AllPolicy{&CountPolicy{MaxCount: 4}, &SizePolicy{MaxTotalBytes: 250}}
	if got := p.Apply(infos(5, 100)); len(got) != 2 {
		t.Errorf("kept %d, want 2", len(got))
	}
	if got := (AllPolicy{}).Apply(infos(3, 1)); len(got) != 3 {
		t.Errorf("empty policy kept %d, want 3", len(got))
	}
}

func writeArchiveAt(t *testing.T, dir, name string, created time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name+Ext)
	a := &Archive{
		Version:   FormatVersion,
		CreatedAt: created,
		Run:       store.Run{ID: name, Name: name},
		State:     testState(t, 0),
	}
	if _, err := Write(path, a); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return path
}

func TestListArchives(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	writeArchiveAt(t, dir, "old", base)
	writeArchiveAt(t, dir, "new", base.Add(time.Hour))
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600)
	os.WriteFile(filepath.Join(dir, "broken"+Ext), []byte("x"), 0600)

	got, err := ListArchives(dir)
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("listed %d archives, want 3", len(got))
	}

	var names []string
	for _, a := range got {
		if a.Err == nil {
			names = append(names, a.Name)
		}
	}
	if len(names) != 2 || names[0] != "new" || names[1] != "old" {
		t.Errorf("readable archives = %v, want [new old]", names)
	}
}

func TestListArchives_MissingDir(t *testing.T) {
	got, err := ListArchives(filepath.Join(t.TempDir(), "missing"))
	if err != nil || got != nil {
		t.Errorf("ListArchives = %v, %v; want nil, nil", got, err)
	}
}

func TestApplyRetention(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var paths []string
	for i, name := range []string{"a", "b", "c", "d"} {
		paths = append(paths, writeArchiveAt(t, dir, name, base.Add(time.Duration(i)*time.Hour)))
	}

	deleted, err := ApplyRetention(dir, &CountPolicy{MaxCount: 2})
	if err != nil {
		t.Fatalf("ApplyRetention: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("deleted %d, want 2", len(deleted))
	}
	for _, p := range paths[:2] {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should be deleted", filepath.Base(p))
		}
	}
	for _, p := range paths[2:] {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should be kept: %v", filepath.Base(p), err)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"720h", 720 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"", 0, true},
		{"d", 0, true},
		{"5y", 0, true},
		{"xd", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, %v; want %v, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"100B", 100, false},
		{"2KB", 2048, false},
		{"5MB", 5 << 20, false},
		{"1GB", 1 << 30, false},
		{" 3MB ", 3 << 20, false},
		{"", 0, true},
		{"10", 0, true},
		{"-1MB", 0, true},
		{"xMB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseSize(%q) = %v, %v; want %v, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
