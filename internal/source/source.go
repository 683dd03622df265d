// Package source reads input files line by line for the merge engine.
//
// A LineSource answers "what is line i?" with the line text, io.EOF when
// the stream has fewer lines, or a *ReadError for physical failures. Two
// strategies satisfy that contract: Cursor keeps one open reader and only
// moves forward, Rescan reopens the input and scans from the start on every
// call. The merge engine behaves identically on both.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"kmerge/internal/compression"
)

// ErrClosed is wrapped in the ReadError returned after Close.
var ErrClosed = errors.New("source closed")

// LineSource is random access by zero-based line index over one input.
type LineSource interface {
	// ID identifies the input in diagnostics (usually its path).
	ID() string
	// Line returns the text of line index without its terminator,
	// io.EOF if there is no such line, or a *ReadError.
	Line(index int) (string, error)
	// Close releases any held handle. It is safe to call more than once.
	Close() error
}

// ReadError is a physical failure reading a line from a source.
type ReadError struct {
	Source string
	Line   int
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s line %d: %v", e.Source, e.Line, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// OpenFunc opens the underlying stream from its beginning.
type OpenFunc func() (io.ReadCloser, error)

// Strategy selects a LineSource implementation.
type Strategy string

const (
	StrategyCursor Strategy = "cursor"
	StrategyRescan Strategy = "rescan"
)

// ParseStrategy parses a reader strategy name. Empty means cursor.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cursor", "sequential":
		return StrategyCursor, nil
	case "rescan", "naive":
		return StrategyRescan, nil
	default:
		return "", fmt.Errorf("unknown reader strategy %q (expected cursor or rescan)", s)
	}
}

// New builds a LineSource over open using strategy s. Nothing is opened
// until the first Line call, so an unopenable input shows up as a
// ReadError on line 0.
func New(id string, open OpenFunc, s Strategy) LineSource {
	if s == StrategyRescan {
		return &Rescan{id: id, open: open}
	}
	return &Cursor{id: id, open: open}
}

// Open builds a LineSource over the file at path. Gzip and zstd files are
// decompressed transparently.
func Open(path string, s Strategy) LineSource {
	return New(path, FileOpener(path), s)
}

// FileOpener opens path and wraps it with the decompressor matching its
// magic bytes.
func FileOpener(path string) OpenFunc {
	return func() (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		r, _, err := compression.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &stackedReader{Reader: r, closers: []io.Closer{r, f}}, nil
	}
}

// stackedReader closes a decoder and the file beneath it.
type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// readLine reads one line, stripping "\n" or "\r\n". A final line without
// terminator is still a line.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSuffix(line, "\r"), nil
		}
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}
