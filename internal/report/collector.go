// Package report turns merge notices into log lines and run reports.
package report

import (
	"log/slog"
	"sync"

	"kmerge/internal/merge"
	"kmerge/internal/slogutil"
)

// DefaultMaxNotices bounds how many notices a Collector keeps.
const DefaultMaxNotices = 1000

// NoticeRecord is a kept notice. Line is one-based.
type NoticeRecord struct {
	Source  string           `json:"source" yaml:"source" toml:"source"`
	Kind    merge.NoticeKind `json:"kind" yaml:"kind" toml:"kind"`
	Line    int              `json:"line" yaml:"line" toml:"line"`
	Message string           `json:"message,omitempty" yaml:"message,omitempty" toml:"message,omitempty"`
}

// Collector logs every notice and keeps the first max of them plus every
// retirement. It is a merge.Reporter.
type Collector struct {
	logger  *slog.Logger
	max     int
	mu      sync.Mutex
	notices []NoticeRecord
	dropped int
	counts  map[merge.NoticeKind]int
}

// NewCollector returns a Collector. A negative max keeps nothing; zero
// means DefaultMaxNotices.
func NewCollector(logger *slog.Logger, max int) *Collector {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if max == 0 {
		max = DefaultMaxNotices
	}
	if max < 0 {
		max = 0
	}
	return &Collector{logger: logger, max: max, counts: make(map[merge.NoticeKind]int)}
}

func (c *Collector) Notify(n merge.Notice) {
	line := n.Line + 1
	switch n.Kind {
	case merge.NoticeEndOfStream:
		c.logger.Info("reached end of file", "file", n.Source, "lines", n.Line)
	case merge.NoticeReadError:
		c.logger.Warn("can't be read", "file", n.Source, "line", line, "error", n.Err)
	case merge.NoticeDecodeFailure:
		c.logger.Warn("unexpected type, skipping line", "file", n.Source, "line", line, "error", n.Err)
	case merge.NoticeOrderViolation:
		c.logger.Warn("incorrect order, skipping line", "file", n.Source, "line", line, "error", n.Err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[n.Kind]++
	// Retirements are kept past the bound so every source shows how it ended.
	if c.max == 0 || (len(c.notices) >= c.max && !n.Kind.Retires()) {
		c.dropped++
		return
	}
	rec := NoticeRecord{Source: n.Source, Kind: n.Kind, Line: line}
	if n.Err != nil {
		rec.Message = n.Err.Error()
	}
	c.notices = append(c.notices, rec)
}

// Notices returns a copy of the kept notices.
func (c *Collector) Notices() []NoticeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]NoticeRecord(nil), c.notices...)
}

// Dropped is the number of notices seen past the limit.
func (c *Collector) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Count is the number of notices of kind seen, kept or not.
func (c *Collector) Count(kind merge.NoticeKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}
