package source

import (
	"bufio"
	"errors"
	"io"
)

// Cursor keeps the input open and reads forward only. Asking for an index
// behind the cursor reopens the input, which the merge engine never does.
type Cursor struct {
	id     string
	open   OpenFunc
	rc     io.ReadCloser
	br     *bufio.Reader
	next   int // index of the line the reader is positioned at
	eof    bool
	closed bool
}

func (c *Cursor) ID() string { return c.id }

func (c *Cursor) Line(index int) (string, error) {
	if c.closed {
		return "", &ReadError{Source: c.id, Line: index, Err: ErrClosed}
	}
	if index < 0 {
		return "", &ReadError{Source: c.id, Line: index, Err: errors.New("negative line index")}
	}

	if c.rc == nil || index < c.next {
		if err := c.reset(); err != nil {
			return "", &ReadError{Source: c.id, Line: index, Err: err}
		}
	}
	if c.eof {
		return "", io.EOF
	}

	for {
		line, err := readLine(c.br)
		if errors.Is(err, io.EOF) {
			c.eof = true
			return "", io.EOF
		}
		if err != nil {
			// Position is unknown after a failed read; start over next time.
			at := c.next
			c.release()
			return "", &ReadError{Source: c.id, Line: at, Err: err}
		}
		n := c.next
		c.next++
		if n == index {
			return line, nil
		}
	}
}

func (c *Cursor) reset() error {
	c.release()
	rc, err := c.open()
	if err != nil {
		return err
	}
	c.rc = rc
	c.br = bufio.NewReader(rc)
	return nil
}

func (c *Cursor) release() error {
	var err error
	if c.rc != nil {
		err = c.rc.Close()
	}
	c.rc, c.br = nil, nil
	c.next, c.eof = 0, false
	return err
}

func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.release()
}
