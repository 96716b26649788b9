// Package config provides configuration loading for the relay daemon.
// It handles environment variable parsing and provides default values for all settings.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// godotenv.Load() does not override already-set environment variables,
// so OS env takes precedence over .env, which takes precedence over .env.local.
func init() {
	// Load .env file if it exists (for shared development config)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}

	// Load .env.local if it exists (for local overrides, gitignored)
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the relay daemon.
type Config struct {
	Env             string         // Deployment environment (dev, staging, prod)
	Address         string         // HTTP server address (e.g., ":8080")
	MetricsAddress  string         // Metrics server address (e.g., ":9090")
	RPCURL          string         // Ethereum JSON-RPC endpoint; empty runs the in-memory registry
	ChainID         uint64         // Chain id; read from the RPC endpoint when unset
	Network         string         // Network name used in DIDs (mainnet omits it)
	RegistryAddress common.Address // EthereumDIDRegistry deployment
	RelayerKey      string         // Hex private key that pays for relayed transactions
	DatabaseDSN     string         // Database connection string (PostgreSQL)
	StoreBackend    string         // Relay log backend (memory, postgres)
	ResolveCacheTTL time.Duration  // Lifetime of cached DID documents
	LogFormat       string         // text or json
	TokenAudience   string         // Audience accepted by /v1/token/verify; defaults to the relayer DID
}

// Default configuration values used when environment variables are not set
const (
	defaultAddress         = ":8080"
	defaultMetricsAddress  = ":9090"
	defaultNetwork         = "mainnet"
	defaultRegistry        = "0xdca7ef03e98e0dc2b855be647c39abe984fcf21b" // mainnet deployment
	defaultResolveCacheTTL = 30 * time.Second
)

// Load reads environment variables and produces a Config suitable for wiring the daemon.
// Returns an error if required parameters are missing or invalid.
func Load() (Config, error) {
	cfg := Config{
		Env:            getEnv("ETHR_ENV", "dev"),
		Address:        getEnv("ETHR_HTTP_ADDR", defaultAddress),
		MetricsAddress: getEnv("ETHR_METRICS_ADDR", defaultMetricsAddress),
		RPCURL:         os.Getenv("ETHR_RPC_URL"),
		Network:        getEnv("ETHR_NETWORK", defaultNetwork),
		DatabaseDSN:    os.Getenv("ETHR_DB_DSN"),
		StoreBackend:   strings.ToLower(getEnv("ETHR_STORE_BACKEND", "memory")),
		LogFormat:      strings.ToLower(getEnv("ETHR_LOG_FORMAT", "text")),
		TokenAudience:  os.Getenv("ETHR_TOKEN_AUDIENCE"),
	}

	registry := getEnv("ETHR_REGISTRY_ADDRESS", defaultRegistry)
	if !common.IsHexAddress(registry) {
		return Config{}, fmt.Errorf("invalid ETHR_REGISTRY_ADDRESS: %q", registry)
	}
	cfg.RegistryAddress = common.HexToAddress(registry)

	if raw, exists := os.LookupEnv("ETHR_CHAIN_ID"); exists {
		id, err := parseChainID(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ETHR_CHAIN_ID: %w", err)
		}
		cfg.ChainID = id
	}

	if ttl, exists := os.LookupEnv("ETHR_RESOLVE_CACHE_TTL_SECONDS"); exists {
		d, err := parseSeconds(ttl)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ETHR_RESOLVE_CACHE_TTL_SECONDS: %w", err)
		}
		cfg.ResolveCacheTTL = d
	} else {
		cfg.ResolveCacheTTL = defaultResolveCacheTTL
	}

	switch cfg.StoreBackend {
	case "memory":
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return Config{}, errors.New("ETHR_DB_DSN is required for the postgres store backend")
		}
	default:
		return Config{}, fmt.Errorf("invalid ETHR_STORE_BACKEND: %q", cfg.StoreBackend)
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("invalid ETHR_LOG_FORMAT: %q", cfg.LogFormat)
	}

	// Handle required relayer key
	key, exists := os.LookupEnv("ETHR_RELAYER_KEY")
	if !exists || strings.TrimSpace(key) == "" {
		return Config{}, errors.New("ETHR_RELAYER_KEY is required")
	}
	cfg.RelayerKey = key

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if not set or empty
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// parseChainID accepts decimal or 0x-prefixed hex.
func parseChainID(raw string) (uint64, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(raw), 0)
	if !ok || id.Sign() <= 0 || !id.IsUint64() {
		return 0, fmt.Errorf("%q is not a positive chain id", raw)
	}
	return id.Uint64(), nil
}

// parseSeconds converts a string representation of seconds to a time.Duration
// Returns an error if the value is not a valid positive integer
func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, errors.New("value must be > 0")
	}
	return time.Duration(seconds) * time.Second, nil
}
