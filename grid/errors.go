package grid

import (
	"errors"
	"fmt"
)

// ErrEmpty is wrapped by EmptyStateError so callers can test with errors.Is.
var ErrEmpty = errors.New("no observations loaded")

// ValidationError reports a rejected input: a bad setting or a malformed
// observation. Index is -1 when the error is not about a store entry.
type ValidationError struct {
	Field  string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid %s at observation %d: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// BoundsError reports a cell access outside the accumulator.
type BoundsError struct {
	Col, Row     int
	SizeX, SizeY int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("cell (%d,%d) outside grid %dx%d", e.Col, e.Row, e.SizeX, e.SizeY)
}

// EmptyStateError is returned by queries made before any observation was loaded.
type EmptyStateError struct {
	Op string
}

func (e *EmptyStateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrEmpty)
}

func (e *EmptyStateError) Unwrap() error { return ErrEmpty }

func settingError(field string, v int) error {
	return &ValidationError{Field: field, Index: -1, Reason: fmt.Sprintf("must be positive, got %d", v)}
}
