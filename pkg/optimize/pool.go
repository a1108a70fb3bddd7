package optimize

import (
	"sync"
)

// SlicePool recycles scratch slices of one element type. The registry uses
// it for broadcast target lists, which are allocated per fan-out and die
// immediately after.
type SlicePool[T any] struct {
	pool sync.Pool
	// slices that grew past maxCap are not pooled again
	maxCap int
}

// NewSlicePool creates a pool handing out slices with the given initial
// capacity.
func NewSlicePool[T any](capacity int) *SlicePool[T] {
	return &SlicePool[T]{
		maxCap: capacity * 4,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]T, 0, capacity)
			},
		},
	}
}

// Get returns an empty slice from the pool.
func (p *SlicePool[T]) Get() []T {
	return p.pool.Get().([]T)
}

// Put returns a slice to the pool. Elements are zeroed so pooled slices do
// not pin what they used to reference.
func (p *SlicePool[T]) Put(s []T) {
	if cap(s) > p.maxCap {
		return
	}
	var zero T
	for i := range s {
		s[i] = zero
	}
	p.pool.Put(s[:0])
}

// PreAllocateSlice pre-allocates a slice with known capacity.
func PreAllocateSlice[T any](length, capacity int) []T {
	if capacity < length {
		capacity = length
	}
	return make([]T, length, capacity)
}
