package merge

import (
	"cmp"
	"fmt"
	"strings"
)

// Order is the run-wide sort direction. It decides which candidate is
// emitted next and which lines of a source count as in order.
type Order int

const (
	Ascending Order = iota
	Descending
)

// ParseOrder accepts a, asc, ascending, d, desc, descending.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "a", "asc", "ascending":
		return Ascending, nil
	case "d", "desc", "descending":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("unknown order %q (expected asc or desc)", s)
	}
}

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// compare is negative when a must be emitted before b.
func compare[T cmp.Ordered](o Order, a, b T) int {
	c := cmp.Compare(a, b)
	if o == Descending {
		return -c
	}
	return c
}

// inOrder reports whether next may follow prev from the same source.
// Equal values are always in order.
func inOrder[T cmp.Ordered](o Order, prev, next T) bool {
	return compare(o, prev, next) <= 0
}
