package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0xmhha/mempoolwatch/internal/constants"
	"github.com/0xmhha/mempoolwatch/pkg/types"
)

// Config holds all configuration for the mempool watcher
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Chains       []ChainConfig      `yaml:"chains"`
	Health       HealthConfig       `yaml:"health"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	API          APIConfig          `yaml:"api"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChainConfig describes one watchable chain and its endpoint catalog
type ChainConfig struct {
	// ChainID is the numeric EVM chain ID
	ChainID uint64 `yaml:"chain_id"`
	// Name is a human-readable chain name; defaults to the built-in
	// name for known chain IDs
	Name string `yaml:"name,omitempty"`
	// Endpoints is the candidate endpoint catalog for this chain
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig describes one candidate RPC endpoint
type EndpointConfig struct {
	// URL is the full RPC URL
	URL string `yaml:"url"`
	// Kind is "websocket" or "http"; inferred from the URL scheme when empty
	Kind string `yaml:"kind,omitempty"`
}

// HealthConfig holds endpoint health manager configuration
type HealthConfig struct {
	// ProbeTimeout bounds a single liveness probe
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// HealthyTTL is how long a healthy probe result stays cached
	HealthyTTL time.Duration `yaml:"healthy_ttl"`
	// UnhealthyTTL is how long a failed probe result stays cached;
	// must be shorter than HealthyTTL
	UnhealthyTTL time.Duration `yaml:"unhealthy_ttl"`
	// MaxProbeFanout caps concurrent probes per selection call
	MaxProbeFanout int `yaml:"max_probe_fanout"`
	// ProbeRatePerSecond limits probe issuance across all callers
	ProbeRatePerSecond float64 `yaml:"probe_rate_per_second"`
	// ProbeBurst is the probe rate limiter burst size
	ProbeBurst int `yaml:"probe_burst"`
	// MinReliability is the default reliability floor for diverse selection
	MinReliability float64 `yaml:"min_reliability"`
}

// SubscriptionConfig holds subscription controller configuration
type SubscriptionConfig struct {
	// EndpointCount is how many endpoints each subscription attaches to
	EndpointCount int `yaml:"endpoint_count"`
	// PollingInterval is the pending-block poll period on the polling transport
	PollingInterval time.Duration `yaml:"polling_interval"`
	// DedupTTL is the duplicate-suppression window per subscription
	DedupTTL time.Duration `yaml:"dedup_ttl"`
	// MaxSeenEntries is the hard cap on a subscription's dedup set
	MaxSeenEntries int `yaml:"max_seen_entries"`
}

// APIConfig holds the HTTP stats/health server configuration
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// NewConfig creates a configuration with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Health defaults
	if c.Health.ProbeTimeout == 0 {
		c.Health.ProbeTimeout = constants.DefaultProbeTimeout
	}
	if c.Health.HealthyTTL == 0 {
		c.Health.HealthyTTL = constants.DefaultHealthyTTL
	}
	if c.Health.UnhealthyTTL == 0 {
		c.Health.UnhealthyTTL = constants.DefaultUnhealthyTTL
	}
	if c.Health.MaxProbeFanout == 0 {
		c.Health.MaxProbeFanout = constants.DefaultMaxProbeFanout
	}
	if c.Health.ProbeRatePerSecond == 0 {
		c.Health.ProbeRatePerSecond = constants.DefaultProbeRatePerSecond
	}
	if c.Health.ProbeBurst == 0 {
		c.Health.ProbeBurst = constants.DefaultProbeBurst
	}
	if c.Health.MinReliability == 0 {
		c.Health.MinReliability = constants.DefaultMinReliability
	}

	// Subscription defaults
	if c.Subscription.EndpointCount == 0 {
		c.Subscription.EndpointCount = constants.DefaultEndpointCount
	}
	if c.Subscription.PollingInterval == 0 {
		c.Subscription.PollingInterval = constants.DefaultPollingInterval
	}
	if c.Subscription.DedupTTL == 0 {
		c.Subscription.DedupTTL = constants.DefaultDedupTTL
	}
	if c.Subscription.MaxSeenEntries == 0 {
		c.Subscription.MaxSeenEntries = constants.DefaultMaxSeenEntries
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}

	// Chain defaults
	for i := range c.Chains {
		if c.Chains[i].Name == "" {
			c.Chains[i].Name = constants.ChainName(c.Chains[i].ChainID)
		}
		for j := range c.Chains[i].Endpoints {
			ep := &c.Chains[i].Endpoints[j]
			if ep.Kind == "" {
				ep.Kind = string(inferKind(ep.URL))
			}
		}
	}
}

// inferKind derives the transport kind from the URL scheme.
func inferKind(rawURL string) types.TransportKind {
	if strings.HasPrefix(rawURL, "ws://") || strings.HasPrefix(rawURL, "wss://") {
		return types.TransportWebSocket
	}
	return types.TransportHTTP
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if level := os.Getenv("MEMPOOLWATCH_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("MEMPOOLWATCH_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	if timeout := os.Getenv("MEMPOOLWATCH_PROBE_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid MEMPOOLWATCH_PROBE_TIMEOUT: %w", err)
		}
		c.Health.ProbeTimeout = duration
	}
	if interval := os.Getenv("MEMPOOLWATCH_POLLING_INTERVAL"); interval != "" {
		duration, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid MEMPOOLWATCH_POLLING_INTERVAL: %w", err)
		}
		c.Subscription.PollingInterval = duration
	}
	if ttl := os.Getenv("MEMPOOLWATCH_DEDUP_TTL"); ttl != "" {
		duration, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("invalid MEMPOOLWATCH_DEDUP_TTL: %w", err)
		}
		c.Subscription.DedupTTL = duration
	}
	if count := os.Getenv("MEMPOOLWATCH_ENDPOINT_COUNT"); count != "" {
		val, err := strconv.Atoi(count)
		if err != nil {
			return fmt.Errorf("invalid MEMPOOLWATCH_ENDPOINT_COUNT: %w", err)
		}
		c.Subscription.EndpointCount = val
	}

	if enabled := os.Getenv("MEMPOOLWATCH_API_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid MEMPOOLWATCH_API_ENABLED: %w", err)
		}
		c.API.Enabled = val
	}
	if host := os.Getenv("MEMPOOLWATCH_API_HOST"); host != "" {
		c.API.Host = host
	}
	if port := os.Getenv("MEMPOOLWATCH_API_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid MEMPOOLWATCH_API_PORT: %w", err)
		}
		c.API.Port = val
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}
	seen := make(map[uint64]bool, len(c.Chains))
	for _, chain := range c.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("chain ID is required")
		}
		if seen[chain.ChainID] {
			return fmt.Errorf("duplicate chain ID %d", chain.ChainID)
		}
		seen[chain.ChainID] = true
		if len(chain.Endpoints) == 0 {
			return fmt.Errorf("chain %d: at least one endpoint is required", chain.ChainID)
		}
		for _, ep := range chain.Endpoints {
			if ep.URL == "" {
				return fmt.Errorf("chain %d: endpoint URL is required", chain.ChainID)
			}
			if ep.Kind != string(types.TransportWebSocket) && ep.Kind != string(types.TransportHTTP) {
				return fmt.Errorf("chain %d: invalid endpoint kind %q, must be one of: websocket, http", chain.ChainID, ep.Kind)
			}
		}
	}

	if c.Health.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}
	if c.Health.UnhealthyTTL >= c.Health.HealthyTTL {
		return fmt.Errorf("unhealthy TTL must be shorter than healthy TTL")
	}
	if c.Health.MaxProbeFanout <= 0 {
		return fmt.Errorf("max probe fanout must be positive")
	}
	if c.Health.MinReliability < 0 || c.Health.MinReliability > 1 {
		return fmt.Errorf("min reliability must be within [0,1]")
	}

	if c.Subscription.EndpointCount <= 0 {
		return fmt.Errorf("endpoint count must be positive")
	}
	if c.Subscription.PollingInterval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if c.Subscription.DedupTTL <= 0 {
		return fmt.Errorf("dedup TTL must be positive")
	}
	if c.Subscription.MaxSeenEntries <= 0 {
		return fmt.Errorf("max seen entries must be positive")
	}

	if c.API.Enabled {
		if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
			return fmt.Errorf("API port must be within [%d,%d]", constants.MinPort, constants.MaxPort)
		}
	}

	return nil
}

// Endpoints returns the configured endpoint catalog for a chain, with
// provider labels derived and reliability at its initial score.
func (c *Config) Endpoints(chainID uint64) []types.Endpoint {
	for _, chain := range c.Chains {
		if chain.ChainID != chainID {
			continue
		}
		endpoints := make([]types.Endpoint, 0, len(chain.Endpoints))
		for _, ep := range chain.Endpoints {
			endpoints = append(endpoints, types.Endpoint{
				URL:         ep.URL,
				Kind:        types.TransportKind(ep.Kind),
				Provider:    constants.ProviderLabel(ep.URL),
				Reliability: constants.InitialReliability,
			})
		}
		return endpoints
	}
	return nil
}

// ChainIDs returns all configured chain IDs.
func (c *Config) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Chains))
	for _, chain := range c.Chains {
		ids = append(ids, chain.ChainID)
	}
	return ids
}

// Load is a convenience method that loads configuration in the following order:
// 1. Set defaults
// 2. Load from file (if provided)
// 3. Load from environment variables (override file)
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
