package merge

import "errors"

// NoticeKind classifies a non-fatal anomaly on one source.
type NoticeKind string

const (
	// NoticeReadError: physical read failure. The source retires.
	NoticeReadError NoticeKind = "read-error"
	// NoticeEndOfStream: no more lines. The source retires.
	NoticeEndOfStream NoticeKind = "end-of-stream"
	// NoticeDecodeFailure: the line is not a valid value. It is skipped.
	NoticeDecodeFailure NoticeKind = "decode-failure"
	// NoticeOrderViolation: the value breaks the source's order. It is skipped.
	NoticeOrderViolation NoticeKind = "order-violation"
)

// Retires reports whether the kind removes the source from the merge.
func (k NoticeKind) Retires() bool {
	return k == NoticeReadError || k == NoticeEndOfStream
}

// ErrOutOfOrder is wrapped by order-violation notices.
var ErrOutOfOrder = errors.New("out of order")

// Notice is one diagnostic raised by the engine. Line is the zero-based
// index the anomaly was observed at.
type Notice struct {
	Source string
	Kind   NoticeKind
	Line   int
	Err    error
}

// Reporter receives notices. The engine calls it synchronously from the
// merge loop.
type Reporter interface {
	Notify(Notice)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Notice)

func (f ReporterFunc) Notify(n Notice) { f(n) }
