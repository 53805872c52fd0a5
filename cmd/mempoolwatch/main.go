package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/0xmhha/mempoolwatch/client"
	"github.com/0xmhha/mempoolwatch/internal/config"
	"github.com/0xmhha/mempoolwatch/internal/logger"
	"github.com/0xmhha/mempoolwatch/pkg/api"
	"github.com/0xmhha/mempoolwatch/pkg/health"
	"github.com/0xmhha/mempoolwatch/pkg/registry"
	"github.com/0xmhha/mempoolwatch/pkg/subscription"
	"github.com/0xmhha/mempoolwatch/pkg/types"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	// Define command-line flags
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
		chainID     = flag.Uint64("chain", 0, "Chain ID to watch (overrides config selection)")
		transport   = flag.String("transport", "auto", "Transport preference (auto, streaming, polling)")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "Log format (json, console)")

		// API server flags
		enableAPI = flag.Bool("api", false, "Enable stats/health API server")
		apiHost   = flag.String("api-host", "", "API server host")
		apiPort   = flag.Int("api-port", 0, "API server port")
	)

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		fmt.Printf("mempoolwatch version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override config with command-line flags
	applyFlags(cfg, *logLevel, *logFormat)
	applyAPIFlags(cfg, *enableAPI, *apiHost, *apiPort)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	preference, err := parsePreference(*transport)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	chainIDs := cfg.ChainIDs()
	if *chainID != 0 {
		chainIDs = []uint64{*chainID}
	}
	if len(chainIDs) == 0 {
		log.Fatal("No chains configured")
	}

	log.Info("Starting mempoolwatch",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.Uint64s("chains", chainIDs),
		zap.String("transport", string(preference)),
	)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize components
	log.Info("Initializing components...")

	factory := client.NewRPCFactory(cfg.Health.ProbeTimeout, log)

	healthManager := health.NewManager(
		healthConfig(cfg),
		cfg,
		health.NewTransportProber(factory),
		log,
	)
	healthManager.SetMetrics(health.NewMetrics(""))

	chains := registry.NewStaticChainRegistry(cfg.ChainIDs())
	protocols := registry.NewStaticProtocolRegistry()

	controller := subscription.NewController(
		subscriptionConfig(cfg),
		healthManager,
		factory,
		chains,
		protocols,
		log,
	)
	controller.SetMetrics(subscription.NewMetrics(""))
	defer controller.Close()

	// Open one subscription per configured chain and log deliveries.
	for _, id := range chainIDs {
		handle, err := controller.Subscribe(subscription.Options{
			ChainID:    id,
			Preference: preference,
			OnTransactions: func(txs []types.EnrichedTransaction) {
				for _, tx := range txs {
					log.Info("pending transaction",
						zap.Uint64("chain", tx.ChainID),
						zap.String("hash", tx.Hash),
						zap.String("from", tx.From),
						zap.String("summary", tx.Summary),
						zap.Strings("labels", tx.Labels),
					)
				}
			},
			OnError: func(err error) {
				log.Warn("subscription error", zap.Uint64("chain", id), zap.Error(err))
			},
			OnStatusChange: func(status subscription.Status) {
				log.Info("subscription status",
					zap.Uint64("chain", id),
					zap.String("status", string(status)),
				)
			},
		})
		if err != nil {
			log.Fatal("Failed to subscribe", zap.Uint64("chain", id), zap.Error(err))
		}
		log.Info("Subscription opened",
			zap.String("id", handle.ID()),
			zap.Uint64("chain", handle.ChainID()),
		)
	}

	// Initialize and start API server if enabled
	var apiServer *api.Server
	if cfg.API.Enabled {
		log.Info("Initializing API server...")

		apiConfig := api.DefaultConfig()
		apiConfig.Host = cfg.API.Host
		apiConfig.Port = cfg.API.Port

		apiServer, err = api.NewServer(apiConfig, log, healthManager, controller)
		if err != nil {
			log.Fatal("Failed to create API server", zap.Error(err))
		}

		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error("API server failed", zap.Error(err))
			}
		}()

		log.Info("API server started", zap.String("address", apiConfig.Address()))
	}

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	log.Info("Shutting down gracefully...")

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error("Failed to stop API server gracefully", zap.Error(err))
		}
	}

	// Read final statistics before tearing the subscriptions down.
	for _, snapshot := range controller.Snapshots() {
		log.Info("Final statistics",
			zap.String("id", snapshot.ID),
			zap.Uint64("received", snapshot.Stats.Received),
			zap.Uint64("dropped", snapshot.Stats.Dropped),
		)
	}

	controller.Close()

	log.Info("mempoolwatch stopped")
}

// loadConfig loads configuration from file and environment variables
func loadConfig(configFile string) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists.
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags applies command-line flags to configuration
func applyFlags(cfg *config.Config, logLevel, logFormat string) {
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
}

// applyAPIFlags applies API-related command-line flags to configuration
func applyAPIFlags(cfg *config.Config, enableAPI bool, apiHost string, apiPort int) {
	if enableAPI {
		cfg.API.Enabled = true
	}
	if apiHost != "" {
		cfg.API.Host = apiHost
	}
	if apiPort > 0 {
		cfg.API.Port = apiPort
	}
}

func parsePreference(raw string) (subscription.TransportPreference, error) {
	switch strings.ToLower(raw) {
	case "", "auto":
		return subscription.PreferAuto, nil
	case "streaming", "ws", "websocket":
		return subscription.PreferStreaming, nil
	case "polling", "http":
		return subscription.PreferPolling, nil
	default:
		return "", fmt.Errorf("unknown transport preference %q", raw)
	}
}

func healthConfig(cfg *config.Config) health.Config {
	return health.Config{
		ProbeTimeout:       cfg.Health.ProbeTimeout,
		HealthyTTL:         cfg.Health.HealthyTTL,
		UnhealthyTTL:       cfg.Health.UnhealthyTTL,
		MaxProbeFanout:     cfg.Health.MaxProbeFanout,
		ProbeRatePerSecond: cfg.Health.ProbeRatePerSecond,
		ProbeBurst:         cfg.Health.ProbeBurst,
		MinReliability:     cfg.Health.MinReliability,
	}
}

func subscriptionConfig(cfg *config.Config) subscription.Config {
	return subscription.Config{
		EndpointCount:   cfg.Subscription.EndpointCount,
		PollingInterval: cfg.Subscription.PollingInterval,
		DedupTTL:        cfg.Subscription.DedupTTL,
		MaxSeenEntries:  cfg.Subscription.MaxSeenEntries,
	}
}

// initLogger initializes the logger based on configuration
func initLogger(level, format string) (*zap.Logger, error) {
	if format == "json" || format == "production" {
		return logger.NewProduction()
	}

	cfg := logger.Config{
		Level:       level,
		Encoding:    "console",
		Development: true,
	}
	return logger.NewWithConfig(&cfg)
}
