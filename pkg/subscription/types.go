// Package subscription orchestrates pending-transaction subscriptions:
// it selects endpoints through the health manager, attaches streaming
// or polling watchers with automatic fallback, and drives each payload
// through normalize → dedup → decode → enrich → filter → delivery.
package subscription

import (
	"time"

	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Status is the lifecycle state of a subscription. Transitions are
// monotonic: connecting → active|fallback → closed, and closed is final.
type Status string

const (
	// StatusConnecting means endpoint selection and attachment are in
	// progress.
	StatusConnecting Status = "connecting"
	// StatusActive means at least one streaming watcher is attached.
	StatusActive Status = "active"
	// StatusFallback means polling watchers are attached because
	// streaming was unavailable or not requested.
	StatusFallback Status = "fallback"
	// StatusClosed means the subscription has been torn down.
	StatusClosed Status = "closed"
)

// TransportPreference selects how a subscription wants to attach.
type TransportPreference string

const (
	// PreferAuto tries streaming first and falls back to polling.
	PreferAuto TransportPreference = "auto"
	// PreferStreaming requires streaming; a total streaming failure is
	// reported before polling fallback still proceeds.
	PreferStreaming TransportPreference = "streaming"
	// PreferPolling skips streaming entirely.
	PreferPolling TransportPreference = "polling"
)

// Stats is a point-in-time snapshot of subscription counters.
type Stats struct {
	// Received counts transactions delivered to the subscriber.
	Received uint64 `json:"received"`
	// Dropped counts transactions suppressed as duplicates.
	Dropped uint64 `json:"dropped"`
	// LastActivityAt is when a transaction last moved through the
	// subscription, nil before the first one.
	LastActivityAt *time.Time `json:"lastActivityAt,omitempty"`
}

// Options configures one Subscribe call.
type Options struct {
	// ChainID is the chain to watch. Must be supported by the chain
	// registry.
	ChainID uint64
	// Preference selects the transport; defaults to PreferAuto.
	Preference TransportPreference
	// EndpointCount is how many endpoints to attach; the controller
	// default applies when zero.
	EndpointCount int
	// Filter restricts which enriched transactions are delivered.
	// Nil delivers everything.
	Filter *types.FilterSpec

	// OnTransactions receives enriched transactions that survived the
	// pipeline. Required.
	OnTransactions func([]types.EnrichedTransaction)
	// OnError receives non-fatal diagnostics: failed attaches, endpoint
	// runtime errors, selection failures. Optional.
	OnError func(error)
	// OnStatusChange observes lifecycle transitions. Optional.
	OnStatusChange func(Status)
}

// StatusListener observes status transitions of one subscription.
type StatusListener func(Status)

// Snapshot describes one live subscription for introspection.
type Snapshot struct {
	ID      string `json:"id"`
	ChainID uint64 `json:"chainId"`
	Status  Status `json:"status"`
	Stats   Stats  `json:"stats"`
}
