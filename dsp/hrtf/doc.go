// Package hrtf prepares head-related transfer functions for subband
// binaural rendering.
//
// A Set holds measured (or modelled) head-related impulse responses on a
// list of directions. From it the package estimates interaural time
// differences, converts the responses into per-band filterbank coefficients,
// applies diffuse-field equalisation and phase simplification, and builds an
// interpolation table that maps any direction onto three weighted
// measurement directions.
package hrtf
