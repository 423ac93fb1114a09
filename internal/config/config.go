// Package config loads the market-data sync configuration from a TOML file,
// with godotenv-backed local overrides and three explicit environment
// escape hatches applied last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config is the typed [market_data] configuration record. runtimeMu guards
// the subset of fields UpdateSettings is allowed to change after boot; it
// is a pointer so Config stays safe to copy by value the way Default and
// the TOML decoder already do (copying the mutex itself would not be).
type Config struct {
	Enabled                         bool     `toml:"enabled"`
	DBPath                          string   `toml:"db_path"`
	Adjust                          string   `toml:"adjust"`
	Providers                       []string `toml:"providers"`
	RealtimeProviders               []string `toml:"realtime_providers"`
	ProviderFailoverEnabled         bool     `toml:"provider_failover_enabled"`
	RealtimeProviderFailoverEnabled bool     `toml:"realtime_provider_failover_enabled"`
	ProviderCircuitBreakerSeconds   float64  `toml:"provider_circuit_breaker_seconds"`
	SyncRetryMax                    int      `toml:"sync_retry_max"`
	SyncRetryBackoffSeconds         float64  `toml:"sync_retry_backoff_seconds"`
	SyncFailureCooldownSeconds      float64  `toml:"sync_failure_cooldown_seconds"`
	IncrementalHistoryDays          int      `toml:"incremental_history_days"`
	BootstrapBatchSize              int      `toml:"bootstrap_batch_size"`
	CloseFinalizeTime               string   `toml:"close_finalize_time"`
	ProAPIToken                     string   `toml:"pro_api_token"`

	runtimeMu *sync.Mutex
}

// RuntimeUpdate is a partial set of operational knobs UpdateSettings may
// change without a process restart; nil fields are left untouched. Fields
// that select which provider adapters get constructed (Providers,
// RealtimeProviders, ProAPIToken) or where the store lives (DBPath,
// Adjust) are deliberately excluded: changing those requires rebuilding
// the provider catalog or reopening the store, which is a restart, not a
// settings update.
type RuntimeUpdate struct {
	Enabled                         *bool
	ProviderFailoverEnabled         *bool
	RealtimeProviderFailoverEnabled *bool
	ProviderCircuitBreakerSeconds   *float64
	SyncRetryMax                    *int
	SyncRetryBackoffSeconds         *float64
	SyncFailureCooldownSeconds      *float64
	IncrementalHistoryDays          *int
	BootstrapBatchSize              *int
	CloseFinalizeTime               *string
}

// ApplyRuntimeUpdate applies u's non-nil fields under runtimeMu. Readers
// elsewhere (the Sync Service's per-call field reads) are not themselves
// locked against this; like the rest of the operational knobs this guards,
// a reader may see the old or the new scalar value for one in-flight call
// but never a torn one, which is an acceptable hot-reload consistency
// level for retry/circuit-breaker tuning.
func (c *Config) ApplyRuntimeUpdate(u RuntimeUpdate) {
	c.runtimeMu.Lock()
	defer c.runtimeMu.Unlock()
	if u.Enabled != nil {
		c.Enabled = *u.Enabled
	}
	if u.ProviderFailoverEnabled != nil {
		c.ProviderFailoverEnabled = *u.ProviderFailoverEnabled
	}
	if u.RealtimeProviderFailoverEnabled != nil {
		c.RealtimeProviderFailoverEnabled = *u.RealtimeProviderFailoverEnabled
	}
	if u.ProviderCircuitBreakerSeconds != nil {
		c.ProviderCircuitBreakerSeconds = *u.ProviderCircuitBreakerSeconds
	}
	if u.SyncRetryMax != nil {
		c.SyncRetryMax = *u.SyncRetryMax
	}
	if u.SyncRetryBackoffSeconds != nil {
		c.SyncRetryBackoffSeconds = *u.SyncRetryBackoffSeconds
	}
	if u.SyncFailureCooldownSeconds != nil {
		c.SyncFailureCooldownSeconds = *u.SyncFailureCooldownSeconds
	}
	if u.IncrementalHistoryDays != nil {
		c.IncrementalHistoryDays = *u.IncrementalHistoryDays
	}
	if u.BootstrapBatchSize != nil {
		c.BootstrapBatchSize = *u.BootstrapBatchSize
	}
	if u.CloseFinalizeTime != nil {
		c.CloseFinalizeTime = *u.CloseFinalizeTime
	}
}

type tomlDocument struct {
	MarketData Config `toml:"market_data"`
}

// Default returns the configuration defaults named in the external
// interface table: every key resolves to these values before the TOML
// file, godotenv, and environment overrides are applied.
func Default() Config {
	return Config{
		Enabled:                         true,
		DBPath:                          "output/databases/market.db",
		Adjust:                          "qfq",
		Providers:                       []string{"eastmoney", "tencent", "sina", "pro_api"},
		RealtimeProviders:               []string{"eastmoney", "tencent", "sina", "pro_api"},
		ProviderFailoverEnabled:         true,
		RealtimeProviderFailoverEnabled: true,
		ProviderCircuitBreakerSeconds:   300,
		SyncRetryMax:                    3,
		SyncRetryBackoffSeconds:         1.0,
		SyncFailureCooldownSeconds:      120,
		IncrementalHistoryDays:          20,
		BootstrapBatchSize:              200,
		CloseFinalizeTime:               "15:05",
		ProAPIToken:                     "",
		runtimeMu:                       &sync.Mutex{},
	}
}

// Load reads configPath (a TOML file with a [market_data] table), falling
// back to defaults for any key the file omits or doesn't exist, applies a
// local .env file via godotenv if present, then applies the three
// MARKET_DATA_* environment overrides. Relative db_path values resolve
// against the current working directory.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			var doc tomlDocument
			doc.MarketData = cfg
			if err := toml.Unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
			cfg = doc.MarketData
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg.Adjust = strings.ToLower(cfg.Adjust)
	if cfg.Adjust == "" {
		cfg.Adjust = "qfq"
	}

	resolved, err := toAbsPath(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("resolve db_path: %w", err)
	}
	cfg.DBPath = resolved

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARKET_DATA_DB_PATH"); v != "" {
		if resolved, err := toAbsPath(v); err == nil {
			cfg.DBPath = resolved
		}
	}
	if v := os.Getenv("MARKET_DATA_CLOSE_FINALIZE_TIME"); v != "" {
		cfg.CloseFinalizeTime = v
	}
	if v := os.Getenv("MARKET_DATA_ENABLED"); v != "" {
		cfg.Enabled = parseBoolLike(v)
	}
}

func parseBoolLike(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func toAbsPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Abs(filepath.Join(wd, path))
}

// Validate checks invariants Load cannot recover from.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.SyncRetryMax < 1 {
		return fmt.Errorf("sync_retry_max must be >= 1, got %d", c.SyncRetryMax)
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("providers must list at least one provider")
	}
	return nil
}
