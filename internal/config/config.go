package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Access     AccessConfig     `yaml:"access" mapstructure:"access"`
	Estimator  EstimatorConfig  `yaml:"estimator" mapstructure:"estimator"`
	Usage      UsageConfig      `yaml:"usage" mapstructure:"usage"`
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	MaxUploadMB      int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PricingConfig configures the aggregation engine.
type PricingConfig struct {
	WinningBidsOnly bool `yaml:"winning_bids_only" mapstructure:"winning_bids_only"`
	MaxResults      int  `yaml:"max_results" mapstructure:"max_results"`
	RecentBids      int  `yaml:"recent_bids" mapstructure:"recent_bids"`
}

// TierLimits is the configured allowance for one access state. A
// DailyQuota of 0 means searches are not counted.
type TierLimits struct {
	DailyQuota      int  `yaml:"daily_quota" mapstructure:"daily_quota"`
	ResultsPerQuery int  `yaml:"results_per_query" mapstructure:"results_per_query"`
	Estimator       bool `yaml:"estimator" mapstructure:"estimator"`
}

// AccessConfig holds limits per access state.
type AccessConfig struct {
	Anonymous TierLimits `yaml:"anonymous" mapstructure:"anonymous"`
	Free      TierLimits `yaml:"free" mapstructure:"free"`
	Pro       TierLimits `yaml:"pro" mapstructure:"pro"`
}

// EstimatorConfig configures the bulk pricing workflow.
type EstimatorConfig struct {
	MaxItems    int `yaml:"max_items" mapstructure:"max_items"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// UsageConfig configures retention of the daily search counters.
type UsageConfig struct {
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule" mapstructure:"prune_schedule"`
}

// ResilienceConfig configures startup retries and the store circuit breaker.
type ResilienceConfig struct {
	ConnectAttempts  int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	ConnectBackoffMS int `yaml:"connect_backoff_ms" mapstructure:"connect_backoff_ms"`
}

// Load reads configuration from .env, the config file, and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BIDINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_secs", 30)
	v.SetDefault("server.write_timeout_secs", 120)
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pricing.winning_bids_only", true)
	v.SetDefault("pricing.max_results", 500)
	v.SetDefault("pricing.recent_bids", 20)
	v.SetDefault("access.anonymous.daily_quota", 0)
	v.SetDefault("access.anonymous.results_per_query", 25)
	v.SetDefault("access.anonymous.estimator", false)
	v.SetDefault("access.free.daily_quota", 15)
	v.SetDefault("access.free.results_per_query", 50)
	v.SetDefault("access.free.estimator", false)
	v.SetDefault("access.pro.daily_quota", 0)
	v.SetDefault("access.pro.results_per_query", 500)
	v.SetDefault("access.pro.estimator", true)
	v.SetDefault("estimator.max_items", 300)
	v.SetDefault("estimator.concurrency", 8)
	v.SetDefault("usage.retention_days", 90)
	v.SetDefault("usage.prune_schedule", "15 3 * * *")
	v.SetDefault("resilience.connect_attempts", 5)
	v.SetDefault("resilience.connect_backoff_ms", 500)
	v.SetDefault("resilience.breaker_threshold", 5)
	v.SetDefault("resilience.breaker_reset_secs", 30)

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

// Validate checks that the fields a command needs are present and sane.
// Mode is one of "serve", "migrate", "import", "price".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.MaxUploadMB <= 0 {
			errs = append(errs, "server.max_upload_mb must be > 0")
		}
		errs = append(errs, c.validateEstimator()...)
		errs = append(errs, c.validateAccess()...)
	case "price":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateEstimator()...)
	case "migrate", "import":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pricing.MaxResults <= 0 {
		errs = append(errs, "pricing.max_results must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required (sqlite file path)")
		}
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	return errs
}

func (c *Config) validateEstimator() []string {
	var errs []string
	if c.Estimator.MaxItems < 1 {
		errs = append(errs, "estimator.max_items must be >= 1")
	}
	if c.Estimator.Concurrency < 1 || c.Estimator.Concurrency > 64 {
		errs = append(errs, "estimator.concurrency must be between 1 and 64")
	}
	return errs
}

func (c *Config) validateAccess() []string {
	var errs []string
	if c.Access.Free.DailyQuota < 1 {
		errs = append(errs, "access.free.daily_quota must be >= 1")
	}
	for name, l := range map[string]TierLimits{
		"anonymous": c.Access.Anonymous,
		"free":      c.Access.Free,
		"pro":       c.Access.Pro,
	} {
		if l.ResultsPerQuery < 1 {
			errs = append(errs, "access."+name+".results_per_query must be >= 1")
		}
	}
	return errs
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
