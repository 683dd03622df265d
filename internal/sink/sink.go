// Package sink writes the merged output. Lines are separated rather than
// terminated, so the file never ends with a newline after its last line.
package sink

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"kmerge/internal/compression"
)

// Stdout is the output path that writes to standard output.
const Stdout = "-"

// ErrClosed is wrapped in the WriteError returned after Close.
var ErrClosed = errors.New("sink closed")

// WriteError is any failure creating, writing or closing the destination.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// LineWriter is a newline-separated text writer with a running BLAKE2b-256
// digest of the uncompressed content.
type LineWriter struct {
	path   string
	file   *os.File // nil when the writer does not own the destination
	enc    io.WriteCloser
	buf    *bufio.Writer
	digest hash.Hash
	lines  int
	bytes  int64
	closed bool
}

// Create creates or truncates path and returns a writer for it. Format Auto
// picks compression from the extension. Path "-" writes to stdout, which is
// never closed.
func Create(path string, format compression.Format) (*LineWriter, error) {
	if path == Stdout {
		return newLineWriter(path, nil, os.Stdout, format.Resolve(""))
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, &WriteError{Path: path, Op: "create", Err: err}
	}
	lw, err := newLineWriter(path, f, f, format.Resolve(path))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return lw, nil
}

// New wraps w without compression. Close flushes but does not close w.
func New(w io.Writer) *LineWriter {
	lw, _ := newLineWriter("", nil, w, compression.None)
	return lw
}

func newLineWriter(path string, file *os.File, w io.Writer, format compression.Format) (*LineWriter, error) {
	enc, err := compression.NewWriter(w, format)
	if err != nil {
		return nil, &WriteError{Path: path, Op: "create", Err: err}
	}
	digest, err := blake2b.New256(nil)
	if err != nil {
		return nil, &WriteError{Path: path, Op: "create", Err: err}
	}
	return &LineWriter{
		path:   path,
		file:   file,
		enc:    enc,
		buf:    bufio.NewWriterSize(enc, 64*1024),
		digest: digest,
	}, nil
}

// WriteLine appends one line, preceded by a separator unless it is the first.
func (w *LineWriter) WriteLine(line string) error {
	if w.closed {
		return &WriteError{Path: w.path, Op: "write", Err: ErrClosed}
	}
	if w.lines > 0 {
		if err := w.write("\n"); err != nil {
			return err
		}
	}
	if err := w.write(line); err != nil {
		return err
	}
	w.lines++
	return nil
}

func (w *LineWriter) write(s string) error {
	n, err := w.buf.WriteString(s)
	w.bytes += int64(n)
	_, _ = io.WriteString(w.digest, s[:n])
	if err != nil {
		return &WriteError{Path: w.path, Op: "write", Err: err}
	}
	return nil
}

// Close flushes buffered data, finishes the compressed stream and closes the
// file if the writer owns it. Only the first call does anything.
func (w *LineWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.buf.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := w.enc.Close(); err != nil {
		errs = append(errs, err)
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &WriteError{Path: w.path, Op: "close", Err: errors.Join(errs...)}
	}
	return nil
}

// Path returns the destination path ("-" for stdout, "" for New).
func (w *LineWriter) Path() string { return w.path }

// Lines returns the number of lines written.
func (w *LineWriter) Lines() int { return w.lines }

// Bytes returns the uncompressed byte count written, separators included.
func (w *LineWriter) Bytes() int64 { return w.bytes }

// Digest returns the hex BLAKE2b-256 of the uncompressed content so far.
func (w *LineWriter) Digest() string {
	return hex.EncodeToString(w.digest.Sum(nil))
}
