// Package health maintains a time-windowed view of endpoint liveness
// and selects healthy, provider-diverse endpoint subsets per chain.
//
// Probe results are cached with asymmetric TTLs: healthy records live
// long, unhealthy records expire quickly, so a dead endpoint is not
// hammered while a recovered one is re-checked soon. Each endpoint also
// carries an exponential-moving-average reliability score in [0,1],
// shared across every subscription and chain; the manager is the only
// writer of both.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/mempoolwatch/internal/constants"
	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Catalog supplies the candidate endpoints for a chain.
type Catalog interface {
	Endpoints(chainID uint64) []types.Endpoint
}

// Config holds health manager configuration
type Config struct {
	// ProbeTimeout bounds a single liveness probe
	ProbeTimeout time.Duration
	// HealthyTTL is the cache lifetime of a healthy record
	HealthyTTL time.Duration
	// UnhealthyTTL is the cache lifetime of a failed record
	UnhealthyTTL time.Duration
	// MaxProbeFanout caps concurrent probes per selection call
	MaxProbeFanout int
	// ProbeRatePerSecond and ProbeBurst bound probe issuance globally
	ProbeRatePerSecond float64
	ProbeBurst         int
	// MinReliability is the default reliability floor for diverse selection
	MinReliability float64
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout:       constants.DefaultProbeTimeout,
		HealthyTTL:         constants.DefaultHealthyTTL,
		UnhealthyTTL:       constants.DefaultUnhealthyTTL,
		MaxProbeFanout:     constants.DefaultMaxProbeFanout,
		ProbeRatePerSecond: constants.DefaultProbeRatePerSecond,
		ProbeBurst:         constants.DefaultProbeBurst,
		MinReliability:     constants.DefaultMinReliability,
	}
}

// TransportFilter restricts which endpoint kinds a selection considers.
type TransportFilter int

const (
	// AnyTransport allows both streaming and polling endpoints.
	AnyTransport TransportFilter = iota
	// StreamingOnly allows websocket endpoints.
	StreamingOnly
	// PollingOnly allows HTTP endpoints.
	PollingOnly
)

// Allows reports whether the filter admits the given kind.
func (f TransportFilter) Allows(kind types.TransportKind) bool {
	switch f {
	case StreamingOnly:
		return kind.Streaming()
	case PollingOnly:
		return !kind.Streaming()
	default:
		return true
	}
}

// SelectionOptions tunes DiverseHealthyEndpoints.
type SelectionOptions struct {
	// Count is how many endpoints to select.
	Count int
	// MinReliability is the reliability floor; the manager default
	// applies when zero.
	MinReliability float64
	// Transports restricts endpoint kinds.
	Transports TransportFilter
	// PreferDiverse enables the provider-diversity first phase.
	PreferDiverse bool
}

// Manager is the endpoint health manager. One instance is shared by all
// subscriptions; construct it once and inject it.
type Manager struct {
	cfg     Config
	catalog Catalog
	prober  Prober
	logger  *zap.Logger
	metrics *Metrics

	// cache holds HealthRecords keyed by "<chainID>:<url>" with
	// per-entry TTLs.
	cache   *gocache.Cache
	limiter *rate.Limiter

	// mu guards reliability; scores are shared mutable state across
	// all subscriptions.
	mu          sync.Mutex
	reliability map[string]float64
}

// NewManager creates a health manager.
func NewManager(cfg Config, catalog Catalog, prober Prober, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:         cfg,
		catalog:     catalog,
		prober:      prober,
		logger:      logger.Named("health"),
		cache:       gocache.New(cfg.HealthyTTL, cfg.HealthyTTL),
		limiter:     rate.NewLimiter(rate.Limit(cfg.ProbeRatePerSecond), cfg.ProbeBurst),
		reliability: make(map[string]float64),
	}
}

// SetMetrics enables Prometheus metrics for the manager.
// This is optional - if not called, metrics will not be collected.
func (m *Manager) SetMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// CheckHealth returns the cached health record for an endpoint, probing
// it first if no record is fresh. A probe failure produces an unhealthy
// record, never an error.
func (m *Manager) CheckHealth(ctx context.Context, chainID uint64, endpoint types.Endpoint) types.HealthRecord {
	key := recordKey(chainID, endpoint.URL)

	if cached, ok := m.cache.Get(key); ok {
		if m.metrics != nil {
			m.metrics.CacheHitsTotal.Inc()
		}
		return cached.(types.HealthRecord)
	}

	if err := m.limiter.Wait(ctx); err != nil {
		// Caller went away while queued; report unhealthy but do not
		// cache, the endpoint was never actually probed.
		return types.HealthRecord{
			Healthy:   false,
			Error:     err.Error(),
			CheckedAt: time.Now(),
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	blockNumber, err := m.prober.Probe(probeCtx, endpoint)
	latency := time.Since(start)

	record := types.HealthRecord{
		Healthy:   err == nil,
		Latency:   latency,
		CheckedAt: time.Now(),
	}
	ttl := m.cfg.HealthyTTL
	if err != nil {
		record.Error = err.Error()
		ttl = m.cfg.UnhealthyTTL
		m.logger.Debug("endpoint probe failed",
			zap.Uint64("chainId", chainID),
			zap.String("url", endpoint.URL),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
	} else {
		record.BlockNumber = blockNumber
	}

	m.cache.Set(key, record, ttl)
	score := m.updateReliability(key, record.Healthy)

	if m.metrics != nil {
		result := "healthy"
		if !record.Healthy {
			result = "unhealthy"
		}
		m.metrics.ProbesTotal.WithLabelValues(result).Inc()
		m.metrics.ProbeLatency.Observe(latency.Seconds())
	}

	m.logger.Debug("endpoint probed",
		zap.Uint64("chainId", chainID),
		zap.String("url", endpoint.URL),
		zap.Bool("healthy", record.Healthy),
		zap.Duration("latency", latency),
		zap.Float64("reliability", score),
	)

	return record
}

// Reliability returns the current reliability score for an endpoint.
func (m *Manager) Reliability(chainID uint64, url string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if score, ok := m.reliability[recordKey(chainID, url)]; ok {
		return score
	}
	return constants.InitialReliability
}

// updateReliability applies one EMA step and clamps to [0,1].
func (m *Manager) updateReliability(key string, success bool) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	score, ok := m.reliability[key]
	if !ok {
		score = constants.InitialReliability
	}
	if success {
		score += (1 - score) * constants.ReliabilityAlpha
	} else {
		score *= 1 - constants.ReliabilityAlpha
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	m.reliability[key] = score
	return score
}

// HealthyEndpoints probes the chain's HTTP candidates concurrently and
// returns up to count healthy ones, fastest first.
func (m *Manager) HealthyEndpoints(ctx context.Context, chainID uint64, count int) ([]types.Endpoint, error) {
	candidates := make([]types.Endpoint, 0, m.cfg.MaxProbeFanout)
	for _, ep := range m.catalog.Endpoints(chainID) {
		if ep.Kind.Streaming() {
			continue
		}
		candidates = append(candidates, ep)
		if len(candidates) == m.cfg.MaxProbeFanout {
			break
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrNoEndpoints)
	}

	records := m.probeAll(ctx, chainID, candidates)

	type probed struct {
		endpoint types.Endpoint
		latency  time.Duration
	}
	healthy := make([]probed, 0, len(candidates))
	for i, record := range records {
		if !record.Healthy {
			continue
		}
		ep := candidates[i]
		ep.Reliability = m.Reliability(chainID, ep.URL)
		healthy = append(healthy, probed{endpoint: ep, latency: record.Latency})
	}
	if len(healthy) == 0 {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrNoHealthyEndpoints)
	}

	sort.Slice(healthy, func(i, j int) bool {
		return healthy[i].latency < healthy[j].latency
	})

	if count > len(healthy) {
		count = len(healthy)
	}
	selected := make([]types.Endpoint, 0, count)
	for _, p := range healthy[:count] {
		selected = append(selected, p.endpoint)
	}
	return selected, nil
}

// DiverseHealthyEndpoints selects up to opts.Count healthy endpoints in
// two phases: first one endpoint per distinct provider (when
// PreferDiverse is set), then a concurrent fill from the remaining
// candidates. With most endpoints in the Unknown provider bucket the
// first phase contributes at most one of them, so selection quietly
// degrades to the non-diverse behavior.
func (m *Manager) DiverseHealthyEndpoints(ctx context.Context, chainID uint64, opts SelectionOptions) ([]types.Endpoint, error) {
	minReliability := opts.MinReliability
	if minReliability == 0 {
		minReliability = m.cfg.MinReliability
	}

	var candidates []types.Endpoint
	for _, ep := range m.catalog.Endpoints(chainID) {
		if !opts.Transports.Allows(ep.Kind) {
			continue
		}
		if m.Reliability(chainID, ep.URL) < minReliability {
			continue
		}
		candidates = append(candidates, ep)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrNoHealthyEndpoints)
	}

	used := make(map[string]bool, len(candidates))
	var selected []types.Endpoint

	if opts.PreferDiverse {
		selected = m.selectDiverse(ctx, chainID, candidates, used, opts.Count)
	}

	if remaining := opts.Count - len(selected); remaining > 0 {
		var rest []types.Endpoint
		for _, ep := range candidates {
			if !used[ep.URL] {
				rest = append(rest, ep)
			}
		}
		selected = append(selected, m.selectFastestHealthy(ctx, chainID, rest, remaining)...)
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrNoHealthyEndpoints)
	}
	for i := range selected {
		selected[i].Reliability = m.Reliability(chainID, selected[i].URL)
	}
	return selected, nil
}

// selectDiverse probes one candidate per provider, in catalog order,
// until count endpoints are healthy.
func (m *Manager) selectDiverse(ctx context.Context, chainID uint64, candidates []types.Endpoint, used map[string]bool, count int) []types.Endpoint {
	seenProvider := make(map[string]bool)
	var selected []types.Endpoint

	for _, ep := range candidates {
		if len(selected) == count {
			break
		}
		if seenProvider[ep.Provider] {
			continue
		}
		seenProvider[ep.Provider] = true

		record := m.CheckHealth(ctx, chainID, ep)
		used[ep.URL] = true
		if record.Healthy {
			selected = append(selected, ep)
		}
	}
	return selected
}

// selectFastestHealthy probes candidates concurrently and takes healthy
// ones in completion order up to quota.
func (m *Manager) selectFastestHealthy(ctx context.Context, chainID uint64, candidates []types.Endpoint, quota int) []types.Endpoint {
	if len(candidates) > m.cfg.MaxProbeFanout {
		candidates = candidates[:m.cfg.MaxProbeFanout]
	}
	if len(candidates) == 0 {
		return nil
	}

	var (
		mu       sync.Mutex
		selected []types.Endpoint
		wg       sync.WaitGroup
	)
	for _, ep := range candidates {
		wg.Add(1)
		go func(ep types.Endpoint) {
			defer wg.Done()
			record := m.CheckHealth(ctx, chainID, ep)
			if !record.Healthy {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if len(selected) < quota {
				selected = append(selected, ep)
			}
		}(ep)
	}
	wg.Wait()
	return selected
}

// probeAll checks all candidates concurrently. One probe's failure
// never affects its siblings; failures simply come back as unhealthy
// records.
func (m *Manager) probeAll(ctx context.Context, chainID uint64, candidates []types.Endpoint) []types.HealthRecord {
	records := make([]types.HealthRecord, len(candidates))
	var wg sync.WaitGroup
	for i, ep := range candidates {
		wg.Add(1)
		go func(i int, ep types.Endpoint) {
			defer wg.Done()
			records[i] = m.CheckHealth(ctx, chainID, ep)
		}(i, ep)
	}
	wg.Wait()
	return records
}

// Snapshot returns the cached health records, keyed by "<chainID>:<url>".
func (m *Manager) Snapshot() map[string]types.HealthRecord {
	items := m.cache.Items()
	out := make(map[string]types.HealthRecord, len(items))
	for key, item := range items {
		out[key] = item.Object.(types.HealthRecord)
	}
	return out
}

func recordKey(chainID uint64, url string) string {
	return fmt.Sprintf("%d:%s", chainID, url)
}
