// Package buffer provides the fixed-capacity ring used for per-sensor history.
// Appends past capacity evict the oldest sample, so memory per ring is bounded
// regardless of how long a viewer stays connected.
package buffer

// Ring is a circular buffer of the most recent values. It is not safe for
// concurrent use; each viewer session owns its rings.
type Ring[T any] struct {
	slots    []T
	capacity int
	head     int    // index of the oldest element
	size     int    // number of live elements
	total    uint64 // total values added (may exceed capacity)
}

// NewRing allocates a ring with the given capacity. Non-positive capacities
// are clamped to 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		slots:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest value when the ring is full.
func (r *Ring[T]) Push(v T) {
	r.total++
	if r.size < r.capacity {
		r.slots[(r.head+r.size)%r.capacity] = v
		r.size++
		return
	}
	r.slots[r.head] = v
	r.head = (r.head + 1) % r.capacity
}

// Len returns the number of retained values.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return r.capacity }

// Total returns how many values were ever pushed.
func (r *Ring[T]) Total() uint64 { return r.total }

// At returns the i-th retained value, oldest first.
func (r *Ring[T]) At(i int) T {
	return r.slots[(r.head+i)%r.capacity]
}

// Last returns the newest value; ok is false when the ring is empty.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.At(r.size - 1), true
}

// Values copies the retained values in oldest-to-newest order.
func (r *Ring[T]) Values() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.At(i)
	}
	return out
}

// Each calls fn for each retained value, oldest first.
func (r *Ring[T]) Each(fn func(T)) {
	for i := 0; i < r.size; i++ {
		fn(r.At(i))
	}
}
