package store

import "errors"

var (
	// ErrQuotaExceeded is returned by a backend when a write would push the
	// user's stored bytes past the configured quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrSerialization wraps values that cannot be encoded. It is a caller
	// error and never retried.
	ErrSerialization = errors.New("value is not serializable")

	// ErrUnavailable indicates the persistent backend could not be opened or
	// has been closed.
	ErrUnavailable = errors.New("storage unavailable")
)

// IsQuotaError returns true if the error is a quota failure.
// Uses errors.Is to handle wrapped errors.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
