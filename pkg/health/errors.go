package health

import "errors"

// Sentinel errors for endpoint selection.
var (
	// ErrNoEndpoints means the candidate catalog for the chain is empty.
	ErrNoEndpoints = errors.New("no candidate endpoints")
	// ErrNoHealthyEndpoints means candidates exist but none passed a probe.
	ErrNoHealthyEndpoints = errors.New("no healthy endpoints")
)
