package plan

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writePlan(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "merge.toml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"part-2.txt", "part-1.txt", "other.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	path := writePlan(t, dir, `
output = "merged.txt.gz"
order = "desc"
type = "ints"
report = "run.json"
inputs = ["part-*.txt", "/abs/extra.txt", "missing.txt"]
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Plan{
		Output: filepath.Join(dir, "merged.txt.gz"),
		Order:  "desc",
		Type:   "ints",
		Report: filepath.Join(dir, "run.json"),
		Inputs: []string{
			filepath.Join(dir, "part-1.txt"),
			filepath.Join(dir, "part-2.txt"),
			"/abs/extra.txt",
			filepath.Join(dir, "missing.txt"),
		},
		Path: path,
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_StdoutOutputKept(t *testing.T) {
	dir := t.TempDir()
	p, err := Load(writePlan(t, dir, `output = "-"`+"\ninputs = [\"a.txt\"]\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Output != "-" {
		t.Errorf("Output = %q, want -", p.Output)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", `output = `, "merge.toml"},
		{"unknown key", "output = \"o\"\ninputs = [\"a\"]\nsort = \"asc\"\n", "unknown keys: sort"},
		{"no output", `inputs = ["a"]`, "output is required"},
		{"no inputs", `output = "o"`, "at least one input"},
		{"glob matches nothing", "output = \"o\"\ninputs = [\"none-*.txt\"]\n", "at least one input"},
		{"bad order", "output = \"o\"\ninputs = [\"a\"]\norder = \"up\"\n", "unknown order"},
		{"bad type", "output = \"o\"\ninputs = [\"a\"]\ntype = \"float\"\n", "float"},
		{"bad reader", "output = \"o\"\ninputs = [\"a\"]\nreader = \"mmap\"\n", "mmap"},
		{"bad compression", "output = \"o\"\ninputs = [\"a\"]\ncompression = \"lz4\"\n", "lz4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writePlan(t, t.TempDir(), tt.content))
			var pe *PlanError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *PlanError", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("missing plan should fail")
	}
}
