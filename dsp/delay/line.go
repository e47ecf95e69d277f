package delay

import "fmt"

// Line is a circular delay line of complex subband slots.
//
// Read(1) returns the most recently written slot, Read(Len()) the oldest.
type Line struct {
	buffer   []complex128
	writePos int
}

// New returns a delay line of fixed size.
func New(size int) (*Line, error) {
	if size <= 0 {
		return nil, fmt.Errorf("delay size must be > 0: %d", size)
	}
	return &Line{buffer: make([]complex128, size)}, nil
}

// Len returns internal buffer size.
func (d *Line) Len() int {
	return len(d.buffer)
}

// Write pushes one slot.
func (d *Line) Write(v complex128) {
	d.buffer[d.writePos] = v
	d.writePos++
	if d.writePos >= len(d.buffer) {
		d.writePos = 0
	}
}

// Read returns the slot written delay writes ago.
func (d *Line) Read(delay int) complex128 {
	return d.buffer[d.index(delay)]
}

// Scale multiplies the slot written delay writes ago by g in place.
func (d *Line) Scale(delay int, g float64) {
	i := d.index(delay)
	d.buffer[i] *= complex(g, 0)
}

// Reset clears line state.
func (d *Line) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}

func (d *Line) index(delay int) int {
	size := len(d.buffer)
	return ((d.writePos-delay)%size + size) % size
}
