package optimize

import (
	"testing"
)

func TestSlicePoolReusesCleared(t *testing.T) {
	pool := NewSlicePool[int](8)

	s := pool.Get()
	if cap(s) != 8 {
		t.Errorf("expected capacity 8, got %d", cap(s))
	}

	s = append(s, 1, 2, 3)
	pool.Put(s)

	s2 := pool.Get()
	if len(s2) != 0 {
		t.Errorf("expected empty slice after Put, got length %d", len(s2))
	}
}

func TestSlicePoolZeroesElements(t *testing.T) {
	pool := NewSlicePool[*int](4)

	v := 42
	s := pool.Get()
	s = append(s, &v)
	pool.Put(s)

	// the backing array must not keep the old pointer alive
	s2 := pool.Get()
	s2 = s2[:cap(s2)]
	for i := range s2 {
		if s2[i] != nil {
			t.Errorf("element %d still set after Put", i)
		}
	}
}

func TestSlicePoolDropsOversized(t *testing.T) {
	pool := NewSlicePool[int](2)

	big := make([]int, 0, 64)
	pool.Put(big) // over maxCap, silently dropped

	s := pool.Get()
	if cap(s) > 8 {
		t.Errorf("oversized slice was pooled, capacity %d", cap(s))
	}
}

func TestPreAllocateSlice(t *testing.T) {
	s := PreAllocateSlice[int](5, 10)
	if len(s) != 5 {
		t.Errorf("expected length 5, got %d", len(s))
	}
	if cap(s) != 10 {
		t.Errorf("expected capacity 10, got %d", cap(s))
	}

	// capacity below length is corrected
	s2 := PreAllocateSlice[int](10, 5)
	if len(s2) != 10 {
		t.Errorf("expected length 10, got %d", len(s2))
	}
	if cap(s2) < 10 {
		t.Errorf("expected capacity >= 10, got %d", cap(s2))
	}
}
