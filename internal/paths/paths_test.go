package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCanonical_ResolvesSymlinks(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.txt")
	if err := os.WriteFile(real, []byte("1"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(real, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	a, err := Canonical(real)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Canonical(link)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("Canonical(real) = %q, Canonical(link) = %q", a, b)
	}
}

func TestCanonical_MissingFile(t *testing.T) {
	dir := t.TempDir()
	got, err := Canonical(filepath.Join(dir, "sub", "..", "new.txt"))
	if err != nil {
		t.Fatal(err)
	}
	want, _ := Canonical(dir)
	if got != filepath.Join(want, "new.txt") {
		t.Errorf("Canonical = %q, want under %q", got, want)
	}
}

func TestSame(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(a, nil, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		x, y string
		want bool
	}{
		{"identical", a, a, true},
		{"dot segments", a, filepath.Join(dir, ".", "a.txt"), true},
		{"different", a, filepath.Join(dir, "b.txt"), false},
		{"both missing same path", filepath.Join(dir, "n.txt"), filepath.Join(dir, "x", "..", "n.txt"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Same(tt.x, tt.y); got != tt.want {
				t.Errorf("Same(%q, %q) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestLocations(t *testing.T) {
	if got := ConfigPath("/p"); got != filepath.Join("/p", ".kmerge", "config.json") {
		t.Errorf("ConfigPath = %q", got)
	}

	t.Setenv("KMERGE_HOME", "/tmp/kmerge-home")
	got, err := DefaultJournalPath()
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join("/tmp/kmerge-home", "runs.db") {
		t.Errorf("DefaultJournalPath = %q", got)
	}
}
