package spec

import (
	"errors"
	"fmt"
)

// ErrFormat reports structurally invalid map data: a header constant, the
// major version or the minor version failed validation.
var ErrFormat = errors.New("invalid scmap data")

// ErrTruncated reports input that ended before the layout did.
var ErrTruncated = errors.New("truncated scmap data")

// FormatError is the concrete error behind ErrFormat. It names the field
// that failed validation together with the expected and actual values.
type FormatError struct {
	Field    string
	Expected any
	Actual   any
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid scmap data: %s: expected %v, got %v", e.Field, e.Expected, e.Actual)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// TruncatedError is the concrete error behind ErrTruncated.
type TruncatedError struct {
	Offset int64 // stream position where the input gave out
	Want   int   // bytes still needed by the failed read
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("truncated scmap data: %d more byte(s) needed at offset %d", e.Want, e.Offset)
}

func (e *TruncatedError) Unwrap() error { return ErrTruncated }
