// Package compression wraps input and output streams with gzip or zstd.
// Inputs are detected by magic bytes so a compressed file reads the same as
// a plain one; outputs pick a format explicitly or from the file extension.
package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format is a stream compression format.
type Format string

const (
	None Format = "none"
	Gzip Format = "gzip"
	Zstd Format = "zstd"
	// Auto resolves to a concrete format from the output path.
	Auto Format = "auto"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ParseFormat parses a user-supplied format name. Empty means Auto.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "none", "plain":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "zstd", "zst":
		return Zstd, nil
	default:
		return "", fmt.Errorf("unknown compression %q (expected auto, none, gzip or zstd)", s)
	}
}

// FormatFromPath picks a format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	default:
		return None
	}
}

// Resolve turns Auto into a concrete format for path.
func (f Format) Resolve(path string) Format {
	if f == Auto || f == "" {
		return FormatFromPath(path)
	}
	return f
}

// NewReader sniffs r and returns a reader yielding the decompressed stream.
// Closing the returned reader releases decoder state only; the caller still
// owns r.
func NewReader(r io.Reader) (io.ReadCloser, Format, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, None, err
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, Gzip, fmt.Errorf("gzip header: %w", err)
		}
		return zr, Gzip, nil
	case bytes.HasPrefix(head, zstdMagic):
		dec, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, Zstd, fmt.Errorf("zstd header: %w", err)
		}
		return dec.IOReadCloser(), Zstd, nil
	default:
		return io.NopCloser(br), None, nil
	}
}

// NewWriter wraps w with an encoder for f. Close flushes the encoder but does
// not close w. Auto must be resolved before calling.
func NewWriter(w io.Writer, f Format) (io.WriteCloser, error) {
	switch f {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", f)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
