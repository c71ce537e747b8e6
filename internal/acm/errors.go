package acm

import (
	"errors"
	"fmt"
)

// ErrModelFormat reports a malformed or internally inconsistent model file.
var ErrModelFormat = errors.New("acoustic model format")

// ErrPhonemeMissing reports a phone referenced by the model's listings
// that has no HMM definition.
var ErrPhonemeMissing = errors.New("acoustic model phoneme missing")

func formatErrorf(line int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if line > 0 {
		return fmt.Errorf("%w: line %d: %s", ErrModelFormat, line, msg)
	}
	return fmt.Errorf("%w: %s", ErrModelFormat, msg)
}
