package optimize

import (
	"testing"
)

func BenchmarkSlicePool(b *testing.B) {
	pool := NewSlicePool[int](64)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		s := pool.Get()
		for j := 0; j < 64; j++ {
			s = append(s, j)
		}
		pool.Put(s)
	}
}

func BenchmarkSliceAllocation(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := make([]int, 0, 64)
		for j := 0; j < 64; j++ {
			s = append(s, j)
		}
		_ = s
	}
}

func BenchmarkPreAllocateSlice(b *testing.B) {
	for i := 0; i < b.N; i++ {
		s := PreAllocateSlice[int](10, 20)
		_ = s
	}
}
