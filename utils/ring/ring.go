package ring

import "time"

// Ring is a fixed-capacity ring of durations. It always holds exactly Size()
// entries; Push overwrites the oldest one.
type Ring struct {
	buf []time.Duration
	idx int
}

// New returns a ring of size entries, each set to seed.
func New(size int, seed time.Duration) *Ring {
	if size < 1 {
		size = 1
	}
	r := &Ring{buf: make([]time.Duration, size)}
	r.Fill(seed)
	return r
}

// Fill overwrites every entry with v and rewinds the write index.
func (r *Ring) Fill(v time.Duration) {
	for i := range r.buf {
		r.buf[i] = v
	}
	r.idx = 0
}

// Push stores v at the write index and advances it modulo Size().
func (r *Ring) Push(v time.Duration) {
	r.buf[r.idx] = v
	r.idx = (r.idx + 1) % len(r.buf)
}

func (r *Ring) Size() int {
	return len(r.buf)
}

// Index is the slot the next Push writes to.
func (r *Ring) Index() int {
	return r.idx
}

// At returns the entry stored in slot i.
func (r *Ring) At(i int) time.Duration {
	return r.buf[i]
}

// Values returns a copy of the entries in slot order.
func (r *Ring) Values() []time.Duration {
	out := make([]time.Duration, len(r.buf))
	copy(out, r.buf)
	return out
}
