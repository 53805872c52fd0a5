package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the maximum size of request headers
	DefaultMaxHeaderBytes = 1 << 20

	// DefaultRateLimitPerSecond is the per-IP request rate limit
	DefaultRateLimitPerSecond = 1000.0

	// DefaultRateLimitBurst is the per-IP rate limit burst size
	DefaultRateLimitBurst = 2000

	// DefaultLimiterIdleTTL is how long a client's rate limiter survives
	// without traffic before it is pruned
	DefaultLimiterIdleTTL = 10 * time.Minute
)

// Health Manager Constants
const (
	// DefaultProbeTimeout bounds a single endpoint liveness probe
	DefaultProbeTimeout = 5 * time.Second

	// DefaultHealthyTTL is how long a healthy probe result stays cached
	DefaultHealthyTTL = 5 * time.Minute

	// DefaultUnhealthyTTL is how long a failed probe result stays cached.
	// Strictly shorter than DefaultHealthyTTL so recovered endpoints are
	// re-checked quickly while dead ones are not hammered.
	DefaultUnhealthyTTL = 1 * time.Minute

	// DefaultMaxProbeFanout caps how many candidate endpoints are probed
	// concurrently for one selection call
	DefaultMaxProbeFanout = 10

	// DefaultProbeRatePerSecond limits probe issuance across all callers
	DefaultProbeRatePerSecond = 20

	// DefaultProbeBurst is the probe rate limiter burst size
	DefaultProbeBurst = 40

	// ReliabilityAlpha is the EMA smoothing factor for endpoint
	// reliability updates
	ReliabilityAlpha = 0.1

	// InitialReliability is the starting score for a never-probed endpoint
	InitialReliability = 0.5

	// DefaultMinReliability is the reliability floor for diverse selection
	DefaultMinReliability = 0.3
)

// Subscription Constants
const (
	// DefaultEndpointCount is how many endpoints a subscription attaches to
	DefaultEndpointCount = 3

	// DefaultPollingInterval is the pending-block poll period for
	// subscriptions running on the polling transport
	DefaultPollingInterval = 4 * time.Second

	// DefaultDedupTTL is the window during which a repeated transaction
	// hash is suppressed
	DefaultDedupTTL = 60 * time.Second

	// DefaultMaxSeenEntries is the hard cap on the per-subscription dedup
	// set. A burst beyond the cap shrinks the effective window instead of
	// growing memory without bound.
	DefaultMaxSeenEntries = 50_000
)
