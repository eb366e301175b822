// Package reorder provides an index-keyed reorder buffer: items arrive in any
// order and are released strictly in sequence starting at zero.
package reorder

// Buffer holds out-of-order arrivals until the expected index shows up. It is
// not safe for concurrent use; intended ownership is a single goroutine that
// the producing side reaches only through channel sends.
type Buffer[T any] struct {
	expected uint64
	pending  map[uint64]T
}

func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{pending: make(map[uint64]T)}
}

// Offer stores the item and returns the contiguous run now releasable from
// the expected index, in order. Items below the expected index are duplicates
// of something already released and are dropped.
func (b *Buffer[T]) Offer(index uint64, item T) []T {
	if index < b.expected {
		return nil
	}
	b.pending[index] = item

	var released []T
	for {
		next, ok := b.pending[b.expected]
		if !ok {
			return released
		}
		delete(b.pending, b.expected)
		released = append(released, next)
		b.expected++
	}
}

// Expected reports the next index the buffer is waiting for.
func (b *Buffer[T]) Expected() uint64 {
	return b.expected
}

// Pending reports how many items are buffered waiting on a gap.
func (b *Buffer[T]) Pending() int {
	return len(b.pending)
}
