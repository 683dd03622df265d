package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"kmerge/internal/inputs"
	"kmerge/internal/merge"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Report describes one merge run.
type Report struct {
	RunID          string          `json:"runId" yaml:"runId" toml:"runId"`
	Status         string          `json:"status" yaml:"status" toml:"status"`
	Error          string          `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	StartedAt      time.Time       `json:"startedAt" yaml:"startedAt" toml:"startedAt"`
	FinishedAt     time.Time       `json:"finishedAt" yaml:"finishedAt" toml:"finishedAt"`
	DurationMs     int64           `json:"durationMs" yaml:"durationMs" toml:"durationMs"`
	Order          string          `json:"order" yaml:"order" toml:"order"`
	Type           string          `json:"type" yaml:"type" toml:"type"`
	Reader         string          `json:"reader" yaml:"reader" toml:"reader"`
	DroppedNotices int             `json:"droppedNotices" yaml:"droppedNotices" toml:"droppedNotices"`
	Output         OutputSummary   `json:"output" yaml:"output" toml:"output"`
	Sources        []SourceSummary `json:"sources" yaml:"sources" toml:"sources"`
	Rejected       []RejectedInput `json:"rejected,omitempty" yaml:"rejected,omitempty" toml:"rejected,omitempty"`
	Notices        []NoticeRecord  `json:"notices,omitempty" yaml:"notices,omitempty" toml:"notices,omitempty"`
}

// OutputSummary describes what was written. Digest is the hex BLAKE2b-256
// of the uncompressed output.
type OutputSummary struct {
	Path        string `json:"path" yaml:"path" toml:"path"`
	Compression string `json:"compression" yaml:"compression" toml:"compression"`
	Lines       int    `json:"lines" yaml:"lines" toml:"lines"`
	Bytes       int64  `json:"bytes" yaml:"bytes" toml:"bytes"`
	Digest      string `json:"digest,omitempty" yaml:"digest,omitempty" toml:"digest,omitempty"`
}

// SourceSummary is one input's contribution. RetiredAtLine is the
// one-based line at which the source ended or failed.
type SourceSummary struct {
	Path          string `json:"path" yaml:"path" toml:"path"`
	Emitted       int    `json:"emitted" yaml:"emitted" toml:"emitted"`
	SkippedDecode int    `json:"skippedDecode" yaml:"skippedDecode" toml:"skippedDecode"`
	SkippedOrder  int    `json:"skippedOrder" yaml:"skippedOrder" toml:"skippedOrder"`
	Retired       string `json:"retired" yaml:"retired" toml:"retired"`
	RetiredAtLine int    `json:"retiredAtLine" yaml:"retiredAtLine" toml:"retiredAtLine"`
}

// RejectedInput is an argument that never became a source.
type RejectedInput struct {
	Path   string `json:"path" yaml:"path" toml:"path"`
	Reason string `json:"reason" yaml:"reason" toml:"reason"`
}

// Run carries everything Build needs.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Order      merge.Order
	Type       string
	Reader     string
	Output     OutputSummary
	Stats      merge.Stats
	Rejected   []inputs.Problem
	Err        error
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Build assembles a Report. c may be nil.
func Build(run Run, c *Collector) *Report {
	r := &Report{
		RunID:      run.ID,
		Status:     StatusCompleted,
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		DurationMs: run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
		Order:      run.Order.String(),
		Type:       run.Type,
		Reader:     run.Reader,
		Output:     run.Output,
		Sources:    make([]SourceSummary, 0, len(run.Stats.Sources)),
	}
	if run.Err != nil {
		r.Status = StatusFailed
		r.Error = run.Err.Error()
	}
	for _, s := range run.Stats.Sources {
		r.Sources = append(r.Sources, SourceSummary{
			Path:          s.ID,
			Emitted:       s.Emitted,
			SkippedDecode: s.SkippedDecode,
			SkippedOrder:  s.SkippedOrder,
			Retired:       string(s.Retired),
			RetiredAtLine: s.RetiredAt + 1,
		})
	}
	for _, p := range run.Rejected {
		r.Rejected = append(r.Rejected, RejectedInput{Path: p.Path, Reason: string(p.Kind)})
	}
	if c != nil {
		r.Notices = c.Notices()
		r.DroppedNotices = c.Dropped()
	}
	return r
}

// Encoding is a report serialization.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingYAML Encoding = "yaml"
	EncodingTOML Encoding = "toml"
)

// EncodingFromPath picks an encoding by extension.
func EncodingFromPath(path string) (Encoding, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return EncodingJSON, nil
	case ".yaml", ".yml":
		return EncodingYAML, nil
	case ".toml":
		return EncodingTOML, nil
	default:
		return "", fmt.Errorf("unsupported report extension %q (want .json, .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// Encode writes r to w.
func (r *Report) Encode(w io.Writer, enc Encoding) error {
	switch enc {
	case EncodingJSON:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return e.Encode(r)
	case EncodingYAML:
		e := yaml.NewEncoder(w)
		e.SetIndent(2)
		if err := e.Encode(r); err != nil {
			return err
		}
		return e.Close()
	case EncodingTOML:
		return toml.NewEncoder(w).Encode(r)
	default:
		return fmt.Errorf("unknown report encoding %q", enc)
	}
}

// WriteFile encodes r by path's extension and writes it atomically.
func (r *Report) WriteFile(path string) error {
	enc, err := EncodingFromPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := r.Encode(&buf, enc); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// JSON returns the compact JSON form stored in the run journal.
func (r *Report) JSON() (string, error) {
	data, err := json.Marshal(r)
	return string(data), err
}
