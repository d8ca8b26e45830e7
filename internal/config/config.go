package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/mrms-extract/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Decoder    DecoderConfig    `yaml:"decoder" mapstructure:"decoder"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the attempt log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// DecoderConfig configures the external GRIB2 decoder.
type DecoderConfig struct {
	Wgrib2Path string `yaml:"wgrib2_path" mapstructure:"wgrib2_path"`
}

// FetchConfig configures archive acquisition.
type FetchConfig struct {
	CacheDir    string `yaml:"cache_dir" mapstructure:"cache_dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ExtractConfig configures per-request resource budgets and output scaling.
type ExtractConfig struct {
	BudgetSecs  int     `yaml:"budget_secs" mapstructure:"budget_secs"`
	MaxLines    int64   `yaml:"max_lines" mapstructure:"max_lines"`
	MaxBytes    int64   `yaml:"max_bytes" mapstructure:"max_bytes"`
	ScaleFactor float64 `yaml:"scale_factor" mapstructure:"scale_factor"`
}

// Budget converts the configured limits into a request budget.
func (c ExtractConfig) Budget() model.Budget {
	return model.Budget{
		MaxWallClock: time.Duration(c.BudgetSecs) * time.Second,
		MaxLines:     c.MaxLines,
		MaxBytes:     c.MaxBytes,
	}
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	TTLMinutes        int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
	PartialTTLMinutes int `yaml:"partial_ttl_minutes" mapstructure:"partial_ttl_minutes"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	FullScanShareMax     float64 `yaml:"full_scan_share_max" mapstructure:"full_scan_share_max"`
	MinCacheHitRate      float64 `yaml:"min_cache_hit_rate" mapstructure:"min_cache_hit_rate"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MRMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "mrms-extract.db")
	v.SetDefault("decoder.wgrib2_path", "wgrib2")
	v.SetDefault("fetch.cache_dir", "/tmp/mrms-extract")
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.user_agent", "mrms-extract/1.0")
	v.SetDefault("extract.budget_secs", 30)
	v.SetDefault("extract.max_lines", 0)
	v.SetDefault("extract.max_bytes", 0)
	v.SetDefault("extract.scale_factor", 0.0393700787)
	v.SetDefault("cache.ttl_minutes", 15)
	v.SetDefault("cache.partial_ttl_minutes", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.full_scan_share_max", 0.5)
	v.SetDefault("monitoring.min_cache_hit_rate", 0.0)

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
