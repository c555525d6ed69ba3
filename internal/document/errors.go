package document

import (
	"errors"
	"fmt"
)

// ErrLayerNotFound is returned for an unknown layer ID.
var ErrLayerNotFound = errors.New("layer not found")

// ErrEmptyLayer is returned when reading pixels from a layer with no image.
var ErrEmptyLayer = errors.New("layer has no pixels")

// ConflictError reports an operation refused because the document is in a
// modal state. It is transient: the same call may succeed once the scope
// that holds the lock ends.
type ConflictError struct {
	Op     string
	Holder string
}

func (e *ConflictError) Error() string {
	if e.Holder == "" {
		return fmt.Sprintf("%s: document is in a modal state", e.Op)
	}
	return fmt.Sprintf("%s: document is in a modal state (held by %s)", e.Op, e.Holder)
}

// IsConflict reports whether err is a *ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
