package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "gentuner.db", cfg.Store.Path)
	assert.Equal(t, int32(10), cfg.Store.Pool.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.Pool.MinConns)
	assert.InDelta(t, 0.60, cfg.Scorer.HumanLikenessWeight, 0.001)
	assert.InDelta(t, 0.30, cfg.Scorer.SubjectiveQualityWeight, 0.001)
	assert.InDelta(t, 0.10, cfg.Scorer.ReadabilityWeight, 0.001)
	assert.InDelta(t, 80, cfg.SweetSpot.SuccessThreshold, 0.001)
	assert.Equal(t, 1, cfg.SweetSpot.MinSamples)
	assert.Equal(t, 30, cfg.SweetSpot.HighTier)
	assert.Equal(t, 10, cfg.SweetSpot.MediumTier)
	assert.Equal(t, 5*time.Minute, cfg.SweetSpot.CacheTTL)
	assert.Equal(t, 1, cfg.SweetSpot.RecomputeDelta)
	assert.False(t, cfg.SweetSpot.IncludeFailed)
	assert.Equal(t, "median", cfg.GenConfig.Policy.Selection)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 50, cfg.Server.IngestRate, 0.001)
	assert.Equal(t, 100, cfg.Server.IngestBurst)
	assert.Equal(t, 60, cfg.Monitor.IntervalSecs)
	assert.Equal(t, 24, cfg.Monitor.LookbackHours)
	assert.InDelta(t, 60, cfg.Monitor.ScoreFloor, 0.001)
	assert.InDelta(t, 0.5, cfg.Monitor.FailRateMax, 0.001)
	assert.Empty(t, cfg.Monitor.WebhookURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/gentuner
  pool:
    max_conns: 20
sweetspot:
  success_threshold: 85
  cache_ttl: 90s
genconfig:
  policy:
    selection: explore
    seed: 7
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/gentuner", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(20), cfg.Store.Pool.MaxConns)
	assert.InDelta(t, 85, cfg.SweetSpot.SuccessThreshold, 0.001)
	assert.Equal(t, 90*time.Second, cfg.SweetSpot.CacheTTL)
	assert.Equal(t, "explore", cfg.GenConfig.Policy.Selection)
	assert.Equal(t, uint64(7), cfg.GenConfig.Policy.Seed)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 1, cfg.SweetSpot.MinSamples)
	assert.Equal(t, int32(2), cfg.Store.Pool.MinConns)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GENTUNER_STORE_DRIVER", "postgres")
	t.Setenv("GENTUNER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("GENTUNER_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config mirroring the Load defaults for validation
// tests.
func validDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidateCLI(t *testing.T) {
	cfg := validDefaults(t)
	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidateSqliteNeedsPath(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.Path = ""

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.path is required")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/gentuner"
	assert.NoError(t, cfg.Validate("cli"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateThresholdBounds(t *testing.T) {
	cfg := validDefaults(t)
	cfg.SweetSpot.SuccessThreshold = 120

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "success_threshold")
}

func TestValidateTierOrdering(t *testing.T) {
	cfg := validDefaults(t)
	cfg.SweetSpot.MediumTier = 40

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "medium_tier")
}

func TestValidateSelectionPolicy(t *testing.T) {
	cfg := validDefaults(t)
	cfg.GenConfig.Policy.Selection = "greedy"

	err := cfg.Validate("cli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selection")
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults(t)
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServeRateLimits(t *testing.T) {
	cfg := validDefaults(t)
	cfg.Server.IngestRate = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest_rate")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults(t)
	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
