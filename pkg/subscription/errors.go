package subscription

import (
	"errors"
	"fmt"
)

// Sentinel errors for the subscription package.
var (
	// ErrUnsupportedChain is returned synchronously by Subscribe for a
	// chain the registry does not know.
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrSubscriptionNotFound is returned for operations on an unknown
	// subscription ID.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrNoTransportAttached is the terminal error when neither the
	// streaming nor the polling path attached a single watcher.
	ErrNoTransportAttached = errors.New("no transport attached")
)

// EndpointError wraps a failure scoped to one endpoint. Such failures
// are reported but never tear down the other endpoints' watchers.
type EndpointError struct {
	URL string
	Op  string
	Err error
}

// NewEndpointError creates an endpoint-scoped error.
func NewEndpointError(url, op string, err error) *EndpointError {
	return &EndpointError{URL: url, Op: op, Err: err}
}

// Error implements the error interface.
func (e *EndpointError) Error() string {
	return fmt.Sprintf("endpoint %s: %s: %v", e.URL, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *EndpointError) Unwrap() error {
	return e.Err
}
