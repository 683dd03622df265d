// Package codec converts between input lines and the ordered values kmerge
// compares. A codec must fail with ErrInvalidFormat (and nothing else) for
// lines it cannot parse, so the merge can skip them instead of aborting.
package codec

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidFormat is returned by Decode when a line does not parse as the
// codec's value type.
var ErrInvalidFormat = errors.New("invalid format")

// Kind identifies a value type.
type Kind string

const (
	// KindText keeps lines as strings and compares them bytewise.
	KindText Kind = "text"
	// KindInt parses lines as base-10 signed integers.
	KindInt Kind = "int"
)

// ParseKind accepts the short CLI spellings as well as the full names.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "string", "strings", "text":
		return KindText, nil
	case "i", "int", "ints", "integer":
		return KindInt, nil
	default:
		return "", fmt.Errorf("unknown value type %q (expected text or int)", s)
	}
}

// Codec is a bidirectional line <-> value conversion.
type Codec[T cmp.Ordered] interface {
	Decode(line string) (T, error)
	Encode(v T) string
	Kind() Kind
}

// Text is the identity codec.
type Text struct{}

func (Text) Decode(line string) (string, error) { return line, nil }
func (Text) Encode(v string) string             { return v }
func (Text) Kind() Kind                         { return KindText }

// Int parses integers of the host's native int width. Values outside that
// range are decode failures.
type Int struct{}

func (Int) Decode(line string) (int, error) {
	v, err := strconv.ParseInt(line, 10, strconv.IntSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidFormat, line)
	}
	return int(v), nil
}

func (Int) Encode(v int) string { return strconv.Itoa(v) }
func (Int) Kind() Kind          { return KindInt }
