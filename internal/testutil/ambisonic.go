package testutil

import "math"

// PlaneWaveSN3D encodes a mono signal arriving from azimuth/elevation in
// degrees as first-order ACN/SN3D channels (W, Y, Z, X). Azimuth is
// counter-clockwise from the front, so +90 is the left.
func PlaneWaveSN3D(signal []float64, azimuth, elevation float64) [][]float64 {
	az := azimuth * math.Pi / 180
	el := elevation * math.Pi / 180
	gains := [4]float64{
		1,
		math.Sin(az) * math.Cos(el),
		math.Sin(el),
		math.Cos(az) * math.Cos(el),
	}

	out := make([][]float64, len(gains))
	for ch, g := range gains {
		out[ch] = make([]float64, len(signal))
		for i, v := range signal {
			out[ch][i] = g * v
		}
	}
	return out
}

// PlaneWaveN3D is PlaneWaveSN3D with N3D normalisation.
func PlaneWaveN3D(signal []float64, azimuth, elevation float64) [][]float64 {
	out := PlaneWaveSN3D(signal, azimuth, elevation)
	for ch := 1; ch < len(out); ch++ {
		for i := range out[ch] {
			out[ch][i] *= math.Sqrt(3)
		}
	}
	return out
}

// Block returns the frame-th block of size n of every channel.
func Block(channels [][]float64, frame, n int) [][]float64 {
	out := make([][]float64, len(channels))
	for ch, x := range channels {
		out[ch] = x[frame*n : (frame+1)*n]
	}
	return out
}
