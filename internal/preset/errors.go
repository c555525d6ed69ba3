package preset

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Delete for an unknown ID.
	ErrNotFound = errors.New("preset not found")

	// ErrInvalidFile is returned by Import for data that is not a preset
	// collection: unparsable JSON, a missing or zero version, or a missing
	// items array.
	ErrInvalidFile = errors.New("invalid preset file")

	// ErrEmptyName is returned by Save for a blank name.
	ErrEmptyName = errors.New("preset name is empty")

	// ErrEmptyExpr is returned by Save for a blank expression.
	ErrEmptyExpr = errors.New("preset expression is empty")
)

// WriteError reports a write to the backing storage that could not be
// completed, either because the context ended while retrying or because the
// failure was not retryable.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write presets %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsWriteError reports whether err is a *WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}
