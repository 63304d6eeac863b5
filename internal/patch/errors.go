package patch

import (
	"errors"
	"fmt"
)

// ErrPatchFormat is the sentinel wrapped by every PatchFormatError.
var ErrPatchFormat = errors.New("malformed patch")

// PatchFormatError reports input that is not a valid unified diff.
type PatchFormatError struct {
	// Line is the 1-based line number where parsing failed.
	Line int
	// Text is the offending line.
	Text   string
	Reason string
}

func (e *PatchFormatError) Error() string {
	return fmt.Sprintf("malformed patch at line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Unwrap allows errors.Is(err, ErrPatchFormat).
func (e *PatchFormatError) Unwrap() error {
	return ErrPatchFormat
}

// IsPatchFormat reports whether err is (or wraps) a patch format error.
func IsPatchFormat(err error) bool {
	return errors.Is(err, ErrPatchFormat)
}
