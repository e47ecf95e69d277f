// Package binaural implements a first-order parametric binaural decoder.
//
// A Decoder converts four ambisonic channels into a two-channel headphone
// signal. Every band is analysed for a dominant direction; the directional
// part is rendered through interpolated HRTFs, the remainder through a
// MagLS linear decoder, and a covariance-domain mixing matrix imposes the
// resulting target statistics on the linear decode. Decorrelated residual
// signals fill any energy the mixing matrix cannot reach.
//
// The decoder has two execution contexts. Process is the real-time entry
// point and never blocks; Build, Configure and Close run on a background
// goroutine and publish precomputed tables to Process through atomics.
//
//	dec, _ := binaural.New()
//	_ = dec.Configure(48000)
//	go dec.Build()
//	for ... {
//		dec.Process(in, out, binaural.FrameSize)
//	}
package binaural
