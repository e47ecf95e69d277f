package core

// Zero sets all values in buf to 0.
func Zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}

// ZeroComplex sets all values in buf to 0.
func ZeroComplex(buf []complex128) {
	for i := range buf {
		buf[i] = 0
	}
}

// CopyInto copies src into dst, zero-fills any remainder of dst and returns
// the number of copied elements.
func CopyInto(dst, src []float64) int {
	n := copy(dst, src)
	Zero(dst[n:])
	return n
}
