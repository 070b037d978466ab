package audit

import "errors"

var (
	// ErrNoCachedRun is returned when no usable cached audit exists.
	ErrNoCachedRun = errors.New("no cached audit run")

	// ErrRunInProgress is returned when a run is started while another
	// one is still executing.
	ErrRunInProgress = errors.New("an audit run is already in progress")
)
