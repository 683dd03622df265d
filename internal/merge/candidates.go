package merge

import (
	"cmp"

	"kmerge/internal/source"
)

// slot is the single record for one active source: its current candidate,
// the line it came from, and its position in the input enumeration.
type slot[T cmp.Ordered] struct {
	src   source.LineSource
	value T
	line  int
	seq   int
}

// candidateSet is a binary heap of active slots ordered by value under the
// run's Order, ties going to the lower seq. It implements heap.Interface.
type candidateSet[T cmp.Ordered] struct {
	order Order
	slots []*slot[T]
}

func (c *candidateSet[T]) Len() int { return len(c.slots) }

func (c *candidateSet[T]) Less(i, j int) bool {
	a, b := c.slots[i], c.slots[j]
	if d := compare(c.order, a.value, b.value); d != 0 {
		return d < 0
	}
	return a.seq < b.seq
}

func (c *candidateSet[T]) Swap(i, j int) { c.slots[i], c.slots[j] = c.slots[j], c.slots[i] }

func (c *candidateSet[T]) Push(x any) { c.slots = append(c.slots, x.(*slot[T])) }

func (c *candidateSet[T]) Pop() any {
	n := len(c.slots)
	s := c.slots[n-1]
	c.slots[n-1] = nil
	c.slots = c.slots[:n-1]
	return s
}

// top is the extremal candidate. Only valid when Len() > 0.
func (c *candidateSet[T]) top() *slot[T] { return c.slots[0] }
