// Package plan reads merge plans: TOML files naming an output, its inputs
// and the merge settings, so a recurring merge can be rerun with one flag.
//
//	output = "merged.txt.gz"
//	order  = "desc"
//	type   = "ints"
//	inputs = ["shards/part-*.txt", "extra.txt"]
package plan

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"kmerge/internal/codec"
	"kmerge/internal/compression"
	"kmerge/internal/merge"
	"kmerge/internal/sink"
	"kmerge/internal/source"
)

// Plan is a decoded plan file. Empty settings defer to flags and config.
type Plan struct {
	Output      string   `toml:"output"`
	Order       string   `toml:"order,omitempty"`
	Type        string   `toml:"type,omitempty"`
	Reader      string   `toml:"reader,omitempty"`
	Compression string   `toml:"compression,omitempty"`
	Report      string   `toml:"report,omitempty"`
	Inputs      []string `toml:"inputs"`

	// Path is the file the plan was loaded from.
	Path string `toml:"-"`
}

// PlanError is a problem with a plan file.
type PlanError struct {
	Path    string
	Message string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan %s: %s", e.Path, e.Message)
}

// Load decodes path, rejects unknown keys, expands input globs and makes
// relative paths relative to the plan's directory.
func Load(path string) (*Plan, error) {
	var p Plan
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, &PlanError{Path: path, Message: err.Error()}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, &PlanError{Path: path, Message: "unknown keys: " + strings.Join(keys, ", ")}
	}
	p.Path = path

	base := filepath.Dir(path)
	p.Output = resolve(base, p.Output)
	p.Report = resolve(base, p.Report)

	var expanded []string
	for _, in := range p.Inputs {
		in = resolve(base, in)
		if !hasGlobMeta(in) {
			expanded = append(expanded, in)
			continue
		}
		matches, err := filepath.Glob(in)
		if err != nil {
			return nil, &PlanError{Path: path, Message: fmt.Sprintf("bad input pattern %q: %v", in, err)}
		}
		sort.Strings(matches)
		expanded = append(expanded, matches...)
	}
	p.Inputs = expanded

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks required fields and setting names.
func (p *Plan) Validate() error {
	fail := func(format string, args ...any) error {
		return &PlanError{Path: p.Path, Message: fmt.Sprintf(format, args...)}
	}
	if p.Output == "" {
		return fail("output is required")
	}
	if len(p.Inputs) == 0 {
		return fail("at least one input is required")
	}
	if p.Order != "" {
		if _, err := merge.ParseOrder(p.Order); err != nil {
			return fail("%v", err)
		}
	}
	if p.Type != "" {
		if _, err := codec.ParseKind(p.Type); err != nil {
			return fail("%v", err)
		}
	}
	if p.Reader != "" {
		if _, err := source.ParseStrategy(p.Reader); err != nil {
			return fail("%v", err)
		}
	}
	if _, err := compression.ParseFormat(p.Compression); err != nil {
		return fail("%v", err)
	}
	return nil
}

func resolve(base, path string) string {
	if path == "" || path == sink.Stdout || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func hasGlobMeta(path string) bool {
	return strings.ContainsAny(path, `*?[`)
}
