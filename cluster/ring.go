package cluster

// DefaultRingCapacity is the number of markers a tracker keeps by default
const DefaultRingCapacity = 300

// UniqueRing is a fixed-capacity FIFO that holds at most one value per key.
// Pushing a key that is already present is a no-op; pushing into a full
// ring evicts the oldest value. It is not safe for concurrent use.
type UniqueRing[K comparable, T any] struct {
	keyOf func(T) K
	buf   []T
	head  int // index of the oldest element
	size  int
	index map[K]struct{}
}

// NewUniqueRing creates a ring with the given capacity. A non-positive
// capacity falls back to DefaultRingCapacity.
func NewUniqueRing[K comparable, T any](capacity int, keyOf func(T) K) *UniqueRing[K, T] {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &UniqueRing[K, T]{
		keyOf: keyOf,
		buf:   make([]T, capacity),
		index: make(map[K]struct{}, capacity),
	}
}

// Push appends v unless its key is already present. It reports whether v
// was added and returns the evicted value, if any.
func (r *UniqueRing[K, T]) Push(v T) (added bool, evicted *T) {
	k := r.keyOf(v)
	if _, ok := r.index[k]; ok {
		return false, nil
	}

	if r.size == len(r.buf) {
		old := r.buf[r.head]
		delete(r.index, r.keyOf(old))
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		r.index[k] = struct{}{}
		return true, &old
	}

	r.buf[(r.head+r.size)%len(r.buf)] = v
	r.size++
	r.index[k] = struct{}{}
	return true, nil
}

// Remove deletes the value with key k, keeping the order of the rest
func (r *UniqueRing[K, T]) Remove(k K) bool {
	if _, ok := r.index[k]; !ok {
		return false
	}

	values := r.Values()
	r.Clear()
	for _, v := range values {
		if r.keyOf(v) != k {
			r.Push(v)
		}
	}
	return true
}

// Contains reports whether a value with key k is present
func (r *UniqueRing[K, T]) Contains(k K) bool {
	_, ok := r.index[k]
	return ok
}

// Len returns the number of stored values
func (r *UniqueRing[K, T]) Len() int { return r.size }

// Cap returns the capacity
func (r *UniqueRing[K, T]) Cap() int { return len(r.buf) }

// Values returns the stored values from oldest to newest
func (r *UniqueRing[K, T]) Values() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// Update replaces every stored value with fn(value). fn must not change keys.
func (r *UniqueRing[K, T]) Update(fn func(T) T) {
	for i := 0; i < r.size; i++ {
		j := (r.head + i) % len(r.buf)
		r.buf[j] = fn(r.buf[j])
	}
}

// Clear empties the ring
func (r *UniqueRing[K, T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.size = 0
	clear(r.index)
}
