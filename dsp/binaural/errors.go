package binaural

import "errors"

// ErrClosed is returned when building a decoder after Close.
var ErrClosed = errors.New("binaural: decoder is closed")
