package hrtf

import "errors"

var (
	// ErrInvalidSet is returned when an HRIR set is empty or inconsistent.
	ErrInvalidSet = errors.New("hrtf: invalid HRIR set")
	// ErrManifest is returned when an HRIR manifest cannot be interpreted.
	ErrManifest = errors.New("hrtf: invalid manifest")
)
