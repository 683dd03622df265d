package source

import (
	"bufio"
	"errors"
	"io"
)

// Rescan reopens the input and scans from the first line on every call.
// It holds no handle between calls and costs O(index) per read.
type Rescan struct {
	id     string
	open   OpenFunc
	closed bool
}

func (r *Rescan) ID() string { return r.id }

func (r *Rescan) Line(index int) (string, error) {
	if r.closed {
		return "", &ReadError{Source: r.id, Line: index, Err: ErrClosed}
	}
	if index < 0 {
		return "", &ReadError{Source: r.id, Line: index, Err: errors.New("negative line index")}
	}

	rc, err := r.open()
	if err != nil {
		return "", &ReadError{Source: r.id, Line: index, Err: err}
	}
	defer func() { _ = rc.Close() }()

	br := bufio.NewReader(rc)
	for i := 0; ; i++ {
		line, err := readLine(br)
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", &ReadError{Source: r.id, Line: i, Err: err}
		}
		if i == index {
			return line, nil
		}
	}
}

func (r *Rescan) Close() error {
	r.closed = true
	return nil
}
