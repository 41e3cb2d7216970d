package operator

import "errors"

var (
	// ErrSkipped marks a start result of an operator that failed its integrity checks.
	ErrSkipped = errors.New("operator skipped")

	// ErrNoEntity is reported when a conversion function returns no entity and no error.
	ErrNoEntity = errors.New("conversion produced no entity")

	// ErrWatcherClosed is returned when a subscription is established after Close.
	ErrWatcherClosed = errors.New("watcher closed")

	// ErrAlreadyStarted is returned by a second call to Watch.
	ErrAlreadyStarted = errors.New("watcher already started")
)
