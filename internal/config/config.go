package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendAuto     = "auto"
	BackendBridge   = "bridge"
	BackendEmbedded = "embedded"
	BackendLocal    = "local"
)

const DefaultPollInterval = 5 * time.Second

type Config struct {
	Environment string `toml:"environment"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	LogFormatJSON bool   `toml:"log_format_json"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// backend selection
	Backend string `toml:"backend"`

	// native bridge
	BridgeURL                 string `toml:"bridge_url"`
	BridgeHost                string `toml:"bridge_host"`
	BridgePort                int    `toml:"bridge_port"`
	BridgeRateLimitPerMin     int    `toml:"bridge_rate_limit_per_min"`
	BridgeFindCacheSizeMB     int    `toml:"bridge_find_cache_size_mb"`
	BridgeFindCacheTTLSeconds int    `toml:"bridge_find_cache_ttl_seconds"`

	// embedded document host
	EmbeddedSocketPath string `toml:"embedded_socket_path"`
	EmbeddedDataDir    string `toml:"embedded_data_dir"`

	// local fallback
	LocalDataDir  string `toml:"local_data_dir"`
	LocalUseRedis bool   `toml:"local_use_redis"`

	// redis, used by the local fallback area and the bridge rate limiter
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// postgres, used by the bridge host
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// app
	PollIntervalSeconds int     `toml:"poll_interval_seconds"`
	UserHeightCm        float64 `toml:"user_height_cm"`

	// metrics
	PrometheusMetricsHost string `toml:"prometheus_metrics_host"`
	PrometheusMetricsPort string `toml:"prometheus_metrics_port"`
}

func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "", BackendAuto, BackendBridge, BackendEmbedded, BackendLocal:
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	if c.UserHeightCm < 0 {
		return errors.New("user height cannot be negative")
	}
	return nil
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, configPath string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.DecodeFile(configPath, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", configPath, err)
	}
	return fromToml(&tomlConfig, env)
}

func Parse(env, data string) (*Config, error) {
	var tomlConfig Toml
	if _, err := toml.Decode(data, &tomlConfig); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return fromToml(&tomlConfig, env)
}

func fromToml(tomlConfig *Toml, env string) (*Config, error) {
	cfg, err := tomlConfig.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section for env [%s] missing", env)
	}
	if cfg.Environment == "" {
		cfg.Environment = strings.ToLower(env)
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendAuto
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
