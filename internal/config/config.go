package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Places   PlacesConfig   `yaml:"places" mapstructure:"places"`
	Resolver ResolverConfig `yaml:"resolver" mapstructure:"resolver"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Worker   WorkerConfig   `yaml:"worker" mapstructure:"worker"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PlacesConfig holds Google Places and Geocoding API settings.
type PlacesConfig struct {
	Key                string  `yaml:"key" mapstructure:"key"`
	PlacesBaseURL      string  `yaml:"places_base_url" mapstructure:"places_base_url"`
	GeocodeBaseURL     string  `yaml:"geocode_base_url" mapstructure:"geocode_base_url"`
	Region             string  `yaml:"region" mapstructure:"region"`
	ConnectTimeoutSecs int     `yaml:"connect_timeout_secs" mapstructure:"connect_timeout_secs"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RateLimitPerSec    float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	MaxRetries         int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// ResolverConfig tunes the address resolution pipeline.
type ResolverConfig struct {
	FreshnessTTLHours  int `yaml:"freshness_ttl_hours" mapstructure:"freshness_ttl_hours"`
	CacheMatchScore    int `yaml:"cache_match_score" mapstructure:"cache_match_score"`
	CandidateGateScore int `yaml:"candidate_gate_score" mapstructure:"candidate_gate_score"`
	RecentScanLimit    int `yaml:"recent_scan_limit" mapstructure:"recent_scan_limit"`
	NearCandidateLimit int `yaml:"near_candidate_limit" mapstructure:"near_candidate_limit"`
}

// IngestConfig configures batch listing ingestion.
type IngestConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// WorkerConfig configures the background parcel-job worker.
type WorkerConfig struct {
	SweepCron string `yaml:"sweep_cron" mapstructure:"sweep_cron"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
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

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LISTING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("places.places_base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("places.geocode_base_url", "https://maps.googleapis.com/maps/api/geocode")
	v.SetDefault("places.region", "us")
	v.SetDefault("places.connect_timeout_secs", 10)
	v.SetDefault("places.request_timeout_secs", 20)
	v.SetDefault("places.rate_limit_per_sec", 10)
	v.SetDefault("places.max_retries", 2)
	v.SetDefault("resolver.freshness_ttl_hours", 24)
	v.SetDefault("resolver.cache_match_score", 90)
	v.SetDefault("resolver.candidate_gate_score", 95)
	v.SetDefault("resolver.recent_scan_limit", 500)
	v.SetDefault("resolver.near_candidate_limit", 10)
	v.SetDefault("ingest.max_concurrent", 5)
	v.SetDefault("worker.sweep_cron", "*/5 * * * *")
	v.SetDefault("worker.batch_size", 20)

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

// Validate checks the configuration for the given run mode. Modes map to
// commands: "resolve" and "ingest" need a store and an API key, "serve"
// additionally needs a usable port, "worker" needs only a store.
func (c *Config) Validate(mode string) error {
	var problems []string

	needStore := func() {
		if c.Store.DatabaseURL == "" && c.Store.Driver != "sqlite" {
			problems = append(problems, "store.database_url is required")
		}
	}
	needKey := func() {
		if c.Places.Key == "" {
			problems = append(problems, "places.key is required")
		}
	}

	switch mode {
	case "resolve", "ingest":
		needStore()
		needKey()
	case "serve":
		needStore()
		needKey()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "worker", "migrate", "status":
		needStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Resolver.CacheMatchScore < 0 || c.Resolver.CacheMatchScore > 100 {
		problems = append(problems, "resolver.cache_match_score must be between 0 and 100")
	}
	if c.Resolver.CandidateGateScore < 0 || c.Resolver.CandidateGateScore > 100 {
		problems = append(problems, "resolver.candidate_gate_score must be between 0 and 100")
	}
	if c.Resolver.FreshnessTTLHours <= 0 {
		problems = append(problems, "resolver.freshness_ttl_hours must be > 0")
	}
	if c.Ingest.MaxConcurrent < 1 || c.Ingest.MaxConcurrent > 50 {
		problems = append(problems, "ingest.max_concurrent must be between 1 and 50")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
