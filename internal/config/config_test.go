package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearMarketDataEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"MARKET_DATA_DB_PATH", "MARKET_DATA_CLOSE_FINALIZE_TIME", "MARKET_DATA_ENABLED"} {
		original, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, original)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	clearMarketDataEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "qfq", cfg.Adjust)
	assert.Equal(t, []string{"eastmoney", "tencent", "sina", "pro_api"}, cfg.Providers)
	assert.Equal(t, 3, cfg.SyncRetryMax)
	assert.Equal(t, "15:05", cfg.CloseFinalizeTime)
	assert.True(t, filepath.IsAbs(cfg.DBPath))
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	clearMarketDataEnv(t)

	path := filepath.Join(t.TempDir(), "app.toml")
	contents := `
[market_data]
adjust = "HFQ"
sync_retry_max = 5
providers = ["tushare", "eastmoney"]
close_finalize_time = "15:30"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hfq", cfg.Adjust)
	assert.Equal(t, 5, cfg.SyncRetryMax)
	assert.Equal(t, []string{"tushare", "eastmoney"}, cfg.Providers)
	assert.Equal(t, "15:30", cfg.CloseFinalizeTime)
	// Untouched keys keep their defaults.
	assert.Equal(t, 20, cfg.IncrementalHistoryDays)
}

func TestLoad_EnvOverridesTakePrecedenceOverTOML(t *testing.T) {
	clearMarketDataEnv(t)

	path := filepath.Join(t.TempDir(), "app.toml")
	require.NoError(t, os.WriteFile(path, []byte("[market_data]\nclose_finalize_time = \"15:30\"\nenabled = true\n"), 0o644))

	dbOverride := filepath.Join(t.TempDir(), "override.db")
	os.Setenv("MARKET_DATA_DB_PATH", dbOverride)
	os.Setenv("MARKET_DATA_CLOSE_FINALIZE_TIME", "15:45")
	os.Setenv("MARKET_DATA_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dbOverride, cfg.DBPath)
	assert.Equal(t, "15:45", cfg.CloseFinalizeTime)
	assert.False(t, cfg.Enabled)
}

func TestValidate_RejectsEmptyProviders(t *testing.T) {
	cfg := Default()
	cfg.Providers = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers")
}

func TestValidate_RejectsNonPositiveRetryMax(t *testing.T) {
	cfg := Default()
	cfg.SyncRetryMax = 0
	err := cfg.Validate()
	require.Error(t, err)
}

func TestApplyRuntimeUpdate_OnlyTouchesProvidedFields(t *testing.T) {
	cfg := Default()

	newMax := 7
	newClose := "15:20"
	cfg.ApplyRuntimeUpdate(RuntimeUpdate{
		SyncRetryMax:      &newMax,
		CloseFinalizeTime: &newClose,
	})

	assert.Equal(t, 7, cfg.SyncRetryMax)
	assert.Equal(t, "15:20", cfg.CloseFinalizeTime)
	// Untouched fields keep their previous values.
	assert.True(t, cfg.ProviderFailoverEnabled)
	assert.Equal(t, 300.0, cfg.ProviderCircuitBreakerSeconds)
}

func TestApplyRuntimeUpdate_CanDisableFailover(t *testing.T) {
	cfg := Default()
	disabled := false
	cfg.ApplyRuntimeUpdate(RuntimeUpdate{ProviderFailoverEnabled: &disabled})
	assert.False(t, cfg.ProviderFailoverEnabled)
}
