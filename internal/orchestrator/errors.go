package orchestrator

import "errors"

var (
	// ErrFinalize is returned when the finalize request fails. The page
	// statuses of the run are still returned alongside it.
	ErrFinalize = errors.New("finalize request failed")

	// ErrNoPages is returned when Run is called with an empty page list.
	ErrNoPages = errors.New("no pages to scan")

	// ErrNoCollector is returned when the orchestrator has no collector.
	ErrNoCollector = errors.New("no page collector configured")
)
