package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/habitsync/internal/model"
)

// ErrUnknownEntity is returned when a score is requested for an id that is
// not in the catalog.
var ErrUnknownEntity = errors.New("unknown entity")

// KindError reports a catalog kind the operation does not accept.
type KindError struct {
	Op   string
	Kind model.Kind
}

// Error implements the error interface.
func (e *KindError) Error() string {
	return fmt.Sprintf("%s: unsupported kind %q", e.Op, e.Kind)
}

// IsKindError returns true if the error is a KindError.
// Uses errors.As to handle wrapped errors.
func IsKindError(err error) bool {
	var ke *KindError
	return errors.As(err, &ke)
}

func unknownEntity(kind model.Kind, id model.EntityID) error {
	return fmt.Errorf("%w: %s %q", ErrUnknownEntity, kind, id)
}
