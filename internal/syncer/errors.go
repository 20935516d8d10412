package syncer

import "errors"

var (
	// ErrSyncInProgress is returned by FullSync while another full sync
	// holds the guard.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrOffline is returned when delivery is requested while the host
	// reports no connectivity.
	ErrOffline = errors.New("offline")
)

// permanentError marks a change that can never be delivered, such as a
// payload that no longer decodes. It is dead-lettered without retries.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
