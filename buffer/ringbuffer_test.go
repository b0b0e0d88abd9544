package buffer

import "testing"

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	got := r.Values()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if last, ok := r.Last(); !ok || last != 5 {
		t.Fatalf("expected last 5, got %d (%v)", last, ok)
	}
	if r.Total() != 5 {
		t.Fatalf("expected total 5, got %d", r.Total())
	}
}

func TestRingPartialFill(t *testing.T) {
	r := NewRing[string](4)
	if _, ok := r.Last(); ok {
		t.Fatalf("expected empty ring to have no last value")
	}
	r.Push("a")
	r.Push("b")
	var seen []string
	r.Each(func(s string) { seen = append(seen, s) })
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("unexpected order: %v", seen)
	}
}

func TestRingCapacityClamp(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	r.Push(2)
	if r.Cap() != 1 || r.Len() != 1 || r.At(0) != 2 {
		t.Fatalf("expected clamped ring holding newest value, got cap=%d len=%d", r.Cap(), r.Len())
	}
}
