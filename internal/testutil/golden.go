// Package testutil provides golden-file helpers for tests.
package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var (
	// updateGolden rewrites golden files instead of comparing.
	// Use: go test ./... -run TestGolden -update
	updateGolden = flag.Bool("update", false, "update golden files")

	// packageDir is the test binary's starting directory, captured before
	// any test changes it.
	packageDir, _ = os.Getwd()
)

// ShouldUpdate returns true if golden files should be updated.
func ShouldUpdate() bool {
	return *updateGolden
}

// GoldenPath is testdata/<name> in the package under test.
func GoldenPath(name string) string {
	return filepath.Join(packageDir, "testdata", name)
}

// CompareGolden compares got against testdata/<name>, failing with a diff
// on mismatch. With -update the file is rewritten instead.
func CompareGolden(t *testing.T, name string, got []byte) {
	t.Helper()

	path := GoldenPath(name)
	if ShouldUpdate() {
		UpdateGolden(t, name, got)
		t.Logf("Updated golden: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("Golden file missing: %s\n\nGot:\n%s\n\nRun with -update to create:\n  go test ./... -run %s -update",
				path, got, t.Name())
		}
		t.Fatalf("Failed to read golden file: %v", err)
	}

	if diff := cmp.Diff(string(expected), string(got)); diff != "" {
		t.Fatalf("Golden mismatch for %s (-want +got):\n%s\nRun with -update to refresh:\n  go test ./... -run %s -update",
			name, diff, t.Name())
	}
}

// UpdateGolden writes data to testdata/<name>.
func UpdateGolden(t *testing.T, name string, data []byte) {
	t.Helper()

	path := GoldenPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create testdata directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write golden file: %v", err)
	}
}
