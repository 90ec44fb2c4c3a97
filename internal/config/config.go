// Package config loads application configuration from file and environment
// and owns the global logger setup.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/forgepoint/gentuner/internal/genconfig"
	"github.com/forgepoint/gentuner/internal/store"
	"github.com/forgepoint/gentuner/internal/sweetspot"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Scorer    ScorerConfig     `yaml:"scorer" mapstructure:"scorer"`
	SweetSpot sweetspot.Config `yaml:"sweetspot" mapstructure:"sweetspot"`
	GenConfig GenConfig        `yaml:"genconfig" mapstructure:"genconfig"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitor   MonitorConfig    `yaml:"monitor" mapstructure:"monitor"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the attempt store backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Path        string           `yaml:"path" mapstructure:"path"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ScorerConfig holds the composite scorer signal weights.
type ScorerConfig struct {
	HumanLikenessWeight     float64 `yaml:"human_likeness_weight" mapstructure:"human_likeness_weight"`
	SubjectiveQualityWeight float64 `yaml:"subjective_quality_weight" mapstructure:"subjective_quality_weight"`
	ReadabilityWeight       float64 `yaml:"readability_weight" mapstructure:"readability_weight"`
}

// GenConfig configures the parameter calculator.
type GenConfig struct {
	Policy genconfig.Policy `yaml:"policy" mapstructure:"policy"`
	// DefaultsPath points at an optional YAML overlay for the static
	// defaults table.
	DefaultsPath string `yaml:"defaults_path" mapstructure:"defaults_path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// IngestRate and IngestBurst throttle attempt ingestion.
	IngestRate  float64 `yaml:"ingest_rate" mapstructure:"ingest_rate"`
	IngestBurst int     `yaml:"ingest_burst" mapstructure:"ingest_burst"`
}

// MonitorConfig configures quality monitoring.
type MonitorConfig struct {
	IntervalSecs  int `yaml:"interval_secs" mapstructure:"interval_secs"`
	LookbackHours int `yaml:"lookback_hours" mapstructure:"lookback_hours"`
	// ScoreFloor is the average composite score below which the alerter
	// fires.
	ScoreFloor float64 `yaml:"score_floor" mapstructure:"score_floor"`
	// FailRateMax is the share of unsuccessful attempts that triggers an
	// alert.
	FailRateMax float64 `yaml:"fail_rate_max" mapstructure:"fail_rate_max"`
	// WebhookURL receives alert payloads; empty disables delivery.
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GENTUNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "gentuner.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("scorer.human_likeness_weight", 0.60)
	v.SetDefault("scorer.subjective_quality_weight", 0.30)
	v.SetDefault("scorer.readability_weight", 0.10)
	v.SetDefault("sweetspot.success_threshold", 80)
	v.SetDefault("sweetspot.min_samples", 1)
	v.SetDefault("sweetspot.high_tier", 30)
	v.SetDefault("sweetspot.medium_tier", 10)
	v.SetDefault("sweetspot.cache_ttl", "5m")
	v.SetDefault("sweetspot.recompute_delta", 1)
	v.SetDefault("genconfig.policy.selection", "median")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ingest_rate", 50)
	v.SetDefault("server.ingest_burst", 100)
	v.SetDefault("monitor.interval_secs", 60)
	v.SetDefault("monitor.lookback_hours", 24)
	v.SetDefault("monitor.score_floor", 60)
	v.SetDefault("monitor.fail_rate_max", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given run mode: "cli" for the
// store-backed commands, "serve" for the HTTP server on top of that.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if c.SweetSpot.SuccessThreshold < 0 || c.SweetSpot.SuccessThreshold > 100 {
		errs = append(errs, "sweetspot.success_threshold must be between 0 and 100")
	}
	if c.SweetSpot.MediumTier > c.SweetSpot.HighTier {
		errs = append(errs, "sweetspot.medium_tier must not exceed sweetspot.high_tier")
	}
	if s := c.GenConfig.Policy.Selection; s != "" && s != genconfig.SelectMedian && s != genconfig.SelectExplore {
		errs = append(errs, fmt.Sprintf("genconfig.policy.selection must be median or explore, got %q", s))
	}
	if c.Monitor.FailRateMax < 0 || c.Monitor.FailRateMax > 1 {
		errs = append(errs, "monitor.fail_rate_max must be between 0 and 1")
	}

	switch mode {
	case "cli":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.IngestRate <= 0 {
			errs = append(errs, "server.ingest_rate must be > 0")
		}
		if c.Server.IngestBurst <= 0 {
			errs = append(errs, "server.ingest_burst must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
