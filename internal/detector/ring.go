package detector

// Ring is a fixed-capacity ring buffer. Once full, each Push overwrites the
// oldest element.
type Ring[T any] struct {
	data []T
	pos  int
	full bool
	cap  int
}

func NewRing[T any](cap int) *Ring[T] {
	if cap < 1 {
		cap = 1
	}
	return &Ring[T]{
		data: make([]T, cap),
		cap:  cap,
	}
}

func (r *Ring[T]) Push(v T) {
	r.data[r.pos] = v
	r.pos++
	if r.pos >= r.cap {
		r.pos = 0
		r.full = true
	}
}

func (r *Ring[T]) Len() int {
	if r.full {
		return r.cap
	}
	return r.pos
}

// Last returns the most recently pushed element.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if r.Len() == 0 {
		return zero, false
	}
	i := r.pos - 1
	if i < 0 {
		i = r.cap - 1
	}
	return r.data[i], true
}

// Slice returns the buffer contents in insertion order.
func (r *Ring[T]) Slice() []T {
	n := r.Len()
	out := make([]T, n)
	if r.full {
		copy(out, r.data[r.pos:])
		copy(out[r.cap-r.pos:], r.data[:r.pos])
	} else {
		copy(out, r.data[:r.pos])
	}
	return out
}
