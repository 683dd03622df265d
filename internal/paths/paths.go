// Package paths resolves file identities and kmerge's on-disk locations.
package paths

import (
	"os"
	"path/filepath"
)

// DirName is the per-project and per-user state directory name.
const DirName = ".kmerge"

// Canonical returns an absolute, cleaned path with symlinks resolved. A
// path that does not exist yet is returned absolute and cleaned; its
// existing parent is still resolved so that a destination and an input
// reached through different links compare equal.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	dir, base := filepath.Split(abs)
	parent, perr := filepath.EvalSymlinks(dir)
	if perr != nil {
		return abs, nil
	}
	return filepath.Join(parent, base), nil
}

// Same reports whether a and b name the same file. Existing files are
// compared with os.SameFile, anything else by canonical path.
func Same(a, b string) bool {
	ia, errA := os.Stat(a)
	ib, errB := os.Stat(b)
	if errA == nil && errB == nil {
		return os.SameFile(ia, ib)
	}
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	return errA == nil && errB == nil && ca == cb
}

// ProjectDir is <root>/.kmerge.
func ProjectDir(root string) string {
	return filepath.Join(root, DirName)
}

// ConfigPath is <root>/.kmerge/config.json.
func ConfigPath(root string) string {
	return filepath.Join(ProjectDir(root), "config.json")
}

// UserDir is ~/.kmerge, or $KMERGE_HOME when set.
func UserDir() (string, error) {
	if dir := os.Getenv("KMERGE_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DirName), nil
}

// DefaultJournalPath is ~/.kmerge/runs.db.
func DefaultJournalPath() (string, error) {
	dir, err := UserDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "runs.db"), nil
}

// EnsureParent creates the directory that will hold path.
func EnsureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
