package extraction

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is matched by errors.Is when no strategy accepts a file.
var ErrUnsupportedFormat = errors.New("unsupported format")

// UnsupportedFormatError names the declared kind and extension that no
// strategy accepted.
type UnsupportedFormatError struct {
	Kind      string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format: kind %q, extension %q", e.Kind, e.Extension)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// ExtractionError wraps a strategy or processing failure.
type ExtractionError struct {
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to parse document: %v", e.Cause)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}
