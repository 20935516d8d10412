package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnreachable indicates the remote could not be reached at all.
var ErrUnreachable = errors.New("remote unreachable")

// RejectedError is returned when the remote answered but refused the
// request.
type RejectedError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote rejected request: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("remote rejected request: %d %s", e.Status, e.Message)
}

// IsRejected returns true if the error is a RejectedError.
// Uses errors.As to handle wrapped errors.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// badRequest builds the rejection for malformed input.
func badRequest(format string, args ...any) error {
	return &RejectedError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}
