package window

import (
	"errors"
	"fmt"
)

var errEmptyCoeffs = errors.New("window coefficients must not be empty")

func validateLength(size int) error {
	if size <= 0 {
		return fmt.Errorf("window size must be > 0: %d", size)
	}
	return nil
}

func validateHop(hop, size int) error {
	if hop <= 0 || hop > size {
		return fmt.Errorf("window hop must be in [1, %d]: %d", size, hop)
	}
	return nil
}
