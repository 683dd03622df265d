// Package merge is the k-way merge engine.
//
// The engine keeps one candidate per active source, repeatedly emits the
// extremal candidate and refills that source from its next valid line. Bad
// lines (wrong type, out of order) are skipped and reported; sources that
// end or fail to read are retired. Only output failures abort a run.
package merge

import (
	"cmp"
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"kmerge/internal/codec"
	"kmerge/internal/slogutil"
	"kmerge/internal/source"
)

// Sink receives encoded output lines. The engine closes it exactly once.
type Sink interface {
	WriteLine(line string) error
	Close() error
}

// OutputError is the fatal failure of writing or closing the destination.
type OutputError struct {
	Err error
}

func (e *OutputError) Error() string { return "output: " + e.Err.Error() }

func (e *OutputError) Unwrap() error { return e.Err }

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("merge engine already ran")

// Options configures an Engine.
type Options struct {
	Order    Order
	Reporter Reporter
	Logger   *slog.Logger
}

// SourceStats describes what one source contributed to a run.
type SourceStats struct {
	ID            string
	Emitted       int
	SkippedDecode int
	SkippedOrder  int
	Retired       NoticeKind
	RetiredAt     int
}

// Stats summarizes a run. Sources follow input order.
type Stats struct {
	Emitted int
	Sources []SourceStats
}

// Engine merges sources of values of type T into a sink.
type Engine[T cmp.Ordered] struct {
	codec    codec.Codec[T]
	sources  []source.LineSource
	sink     Sink
	order    Order
	reporter Reporter
	logger   *slog.Logger

	set   candidateSet[T]
	stats Stats
	ran   bool
}

// New creates an engine. Sources are enumerated in the given order, which
// is also the tie-break order between equal candidates.
func New[T cmp.Ordered](c codec.Codec[T], sources []source.LineSource, sink Sink, opts Options) *Engine[T] {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = ReporterFunc(func(Notice) {})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Engine[T]{
		codec:    c,
		sources:  sources,
		sink:     sink,
		order:    opts.Order,
		reporter: reporter,
		logger:   logger,
		set:      candidateSet[T]{order: opts.Order},
	}
}

// Merge is New followed by Run.
func Merge[T cmp.Ordered](ctx context.Context, c codec.Codec[T], sources []source.LineSource, sink Sink, opts Options) (Stats, error) {
	return New(c, sources, sink, opts).Run(ctx)
}

// Run merges until every source has retired, then closes the sink. It
// returns an *OutputError if the sink fails and ctx.Err() if ctx is done
// between emissions; in both cases the sink is still closed once and every
// source is released.
func (e *Engine[T]) Run(ctx context.Context) (Stats, error) {
	if e.ran {
		return e.stats, ErrAlreadyRun
	}
	e.ran = true
	defer e.releaseActive()

	e.admit()
	e.logger.Debug("merge started",
		"sources", len(e.sources),
		"active", e.set.Len(),
		"order", e.order.String(),
		"type", string(e.codec.Kind()))

	for e.set.Len() > 0 {
		if err := ctx.Err(); err != nil {
			_ = e.sink.Close()
			return e.stats, err
		}

		top := e.set.top()
		if err := e.sink.WriteLine(e.codec.Encode(top.value)); err != nil {
			_ = e.sink.Close()
			return e.stats, &OutputError{Err: err}
		}
		e.stats.Emitted++
		e.stats.Sources[top.seq].Emitted++

		if e.refill(top, top.line+1, true) {
			heap.Fix(&e.set, 0)
		} else {
			heap.Pop(&e.set)
		}
	}

	if err := e.sink.Close(); err != nil {
		return e.stats, &OutputError{Err: err}
	}
	e.logger.Debug("merge finished", "emitted", e.stats.Emitted)
	return e.stats, nil
}

// admit gives every source its first candidate. Leading lines that do not
// decode are skipped like any other bad line.
func (e *Engine[T]) admit() {
	e.stats.Sources = make([]SourceStats, len(e.sources))
	for i, src := range e.sources {
		e.stats.Sources[i] = SourceStats{ID: src.ID(), RetiredAt: -1}
		s := &slot[T]{src: src, seq: i}
		if e.refill(s, 0, false) {
			heap.Push(&e.set, s)
		}
	}
}

// refill reads from line index from onward until it finds a value that
// decodes and, when checkOrder is set, does not break order against the
// slot's current value. It returns false when the source retired instead.
func (e *Engine[T]) refill(s *slot[T], from int, checkOrder bool) bool {
	st := &e.stats.Sources[s.seq]
	for idx := from; ; idx++ {
		line, err := s.src.Line(idx)
		if errors.Is(err, io.EOF) {
			e.retire(s, NoticeEndOfStream, idx, nil)
			return false
		}
		if err != nil {
			e.retire(s, NoticeReadError, idx, err)
			return false
		}

		v, err := e.codec.Decode(line)
		if err != nil {
			st.SkippedDecode++
			e.reporter.Notify(Notice{Source: st.ID, Kind: NoticeDecodeFailure, Line: idx, Err: err})
			continue
		}
		if checkOrder && !inOrder(e.order, s.value, v) {
			st.SkippedOrder++
			e.reporter.Notify(Notice{
				Source: st.ID,
				Kind:   NoticeOrderViolation,
				Line:   idx,
				Err:    fmt.Errorf("%w: %q after %q in %s run", ErrOutOfOrder, line, e.codec.Encode(s.value), e.order),
			})
			continue
		}

		s.value, s.line = v, idx
		return true
	}
}

func (e *Engine[T]) retire(s *slot[T], kind NoticeKind, line int, cause error) {
	st := &e.stats.Sources[s.seq]
	st.Retired, st.RetiredAt = kind, line
	if err := s.src.Close(); err != nil {
		e.logger.Debug("closing retired source", "source", st.ID, "error", err)
	}
	e.reporter.Notify(Notice{Source: st.ID, Kind: kind, Line: line, Err: cause})
}

// releaseActive closes sources still in the candidate set when Run stops
// early.
func (e *Engine[T]) releaseActive() {
	for _, s := range e.set.slots {
		if err := s.src.Close(); err != nil {
			e.logger.Debug("closing source", "source", s.src.ID(), "error", err)
		}
	}
	e.set.slots = nil
}
