// Package inputs screens the input paths of a merge before any of them is
// opened for reading.
package inputs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sync/errgroup"

	kerrors "kmerge/internal/errors"
	"kmerge/internal/paths"
	"kmerge/internal/sink"
)

// statConcurrency bounds parallel stat calls.
const statConcurrency = 8

// ProblemKind says why an input was rejected.
type ProblemKind string

const (
	ProblemMissing    ProblemKind = "missing"
	ProblemNotRegular ProblemKind = "not-regular"
	ProblemDuplicate  ProblemKind = "duplicate"
	ProblemIsOutput   ProblemKind = "is-output"
)

// Problem is one rejected input.
type Problem struct {
	Path string
	Kind ProblemKind
	Err  error
}

func (p Problem) String() string {
	switch p.Kind {
	case ProblemDuplicate:
		return fmt.Sprintf("file %q is duplicated", p.Path)
	case ProblemIsOutput:
		return fmt.Sprintf("file %q is also the output", p.Path)
	default:
		return fmt.Sprintf("file %q does not exist or is not a regular file", p.Path)
	}
}

// Input is an accepted input. Index is its position among the arguments.
type Input struct {
	Path      string
	Canonical string
	Size      int64
	Index     int
}

// Result lists accepted and rejected inputs, each in argument order.
type Result struct {
	Valid    []Input
	Problems []Problem
}

// SingleInput reports whether exactly one input survived. Such a merge is a
// filtered copy.
func (r *Result) SingleInput() bool { return len(r.Valid) == 1 }

// Paths returns the accepted paths in argument order.
func (r *Result) Paths() []string {
	out := make([]string, len(r.Valid))
	for i, in := range r.Valid {
		out[i] = in.Path
	}
	return out
}

type probe struct {
	canonical string
	size      int64
	problem   *Problem
}

// Validate stats every path and rejects the missing, non-regular,
// duplicated (by canonical path, after the first occurrence) and those
// naming output itself. It fails with a NO_VALID_INPUTS error when nothing
// is left.
func Validate(ctx context.Context, inputPaths []string, output string) (*Result, error) {
	probes := make([]probe, len(inputPaths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statConcurrency)
	for i, p := range inputPaths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			probes[i] = stat(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var outputCanonical string
	if output != "" && output != sink.Stdout {
		outputCanonical, _ = paths.Canonical(output)
	}

	res := &Result{}
	seen := make(map[string]bool, len(inputPaths))
	for i, pr := range probes {
		p := inputPaths[i]
		switch {
		case pr.problem != nil:
			res.Problems = append(res.Problems, *pr.problem)
		case seen[pr.canonical]:
			res.Problems = append(res.Problems, Problem{Path: p, Kind: ProblemDuplicate})
		case outputCanonical != "" && (pr.canonical == outputCanonical || paths.Same(p, output)):
			res.Problems = append(res.Problems, Problem{Path: p, Kind: ProblemIsOutput})
		default:
			seen[pr.canonical] = true
			res.Valid = append(res.Valid, Input{Path: p, Canonical: pr.canonical, Size: pr.size, Index: i})
		}
	}

	if len(res.Valid) == 0 {
		return res, kerrors.Newf(kerrors.NoValidInputs, "none of the %d input files can be merged", len(inputPaths)).
			WithDetails(res.Problems)
	}
	return res, nil
}

func stat(p string) probe {
	info, err := os.Stat(p)
	if err != nil {
		kind := ProblemNotRegular
		if errors.Is(err, fs.ErrNotExist) {
			kind = ProblemMissing
		}
		return probe{problem: &Problem{Path: p, Kind: kind, Err: err}}
	}
	if !info.Mode().IsRegular() {
		return probe{problem: &Problem{Path: p, Kind: ProblemNotRegular, Err: fmt.Errorf("%s is a %s", p, info.Mode().Type())}}
	}
	c, err := paths.Canonical(p)
	if err != nil {
		return probe{problem: &Problem{Path: p, Kind: ProblemNotRegular, Err: err}}
	}
	return probe{canonical: c, size: info.Size()}
}
