package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingAPIKey is returned when no upstream credential is configured.
var ErrMissingAPIKey = errors.New("upstream API key is missing")

// ConfigError reports an unusable configuration value.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

// UpstreamConfig describes the market-data provider.
type UpstreamConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`

	// RateLimit caps upstream calls per second across all streams. 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	// BreakerFailures consecutive failures open the breaker for BreakerTimeout. 0 disables it.
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// Validate fails fast when the provider cannot be called at all.
func (u UpstreamConfig) Validate() error {
	if strings.TrimSpace(u.APIKey) == "" {
		return &ConfigError{Key: "upstream.api_key", Err: ErrMissingAPIKey}
	}
	if u.BaseURL == "" {
		return &ConfigError{Key: "upstream.base_url", Err: errors.New("must not be empty")}
	}
	return nil
}

type StreamConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxPerConnection int           `mapstructure:"max_per_connection"`
}

type GatewayConfig struct {
	// ValidTickers is an optional allowlist. Empty means any well-formed symbol.
	ValidTickers []string `mapstructure:"valid_tickers"`
	SendBuffer   int      `mapstructure:"send_buffer"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ProcessorConfig struct {
	NumWorkers   int `mapstructure:"num_workers"`
	HistoryLimit int `mapstructure:"history_limit"`
}

type GeneratorConfig struct {
	Port    string   `mapstructure:"port"`
	Tickers []string `mapstructure:"tickers"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"` // "json" or "console"
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Load .env into the process environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	setDefaults(v)

	// "app.port" -> "APP_PORT"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Viper only maps flat env vars onto nested keys it knows about
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "upstream.base_url", "upstream.timeout", "upstream.rate_limit", "upstream.rate_burst",
		"upstream.breaker_failures", "upstream.breaker_timeout")
	bindEnv(v, "stream.poll_interval", "stream.max_per_connection")
	bindEnv(v, "gateway.valid_tickers", "gateway.send_buffer")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "processor.num_workers", "processor.history_limit")
	bindEnv(v, "generator.port", "generator.tickers")
	bindEnv(v, "logger.level", "logger.encoding")

	// POLYGON_API_KEY is accepted as an alias
	if err := v.BindEnv("upstream.api_key", "UPSTREAM_API_KEY", "POLYGON_API_KEY"); err != nil {
		log.Printf("Could not bind env var for key upstream.api_key: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":5000")
	v.SetDefault("app.env", "local")

	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.base_url", "https://api.polygon.io")
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.rate_limit", 0)
	v.SetDefault("upstream.rate_burst", 1)
	v.SetDefault("upstream.breaker_failures", 5)
	v.SetDefault("upstream.breaker_timeout", 30*time.Second)

	v.SetDefault("stream.poll_interval", 5*time.Second)
	v.SetDefault("stream.max_per_connection", 50)

	v.SetDefault("gateway.valid_tickers", []string{})
	v.SetDefault("gateway.send_buffer", 256)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "price_alerts")
	v.SetDefault("kafka.group_id", "alert-processor-group")

	v.SetDefault("processor.num_workers", 4)
	v.SetDefault("processor.history_limit", 100)

	v.SetDefault("generator.port", ":8090")
	v.SetDefault("generator.tickers", []string{"AAPL", "GOOG", "TSLA", "AMZN"})

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
}

func (c *Config) validate() error {
	if c.Stream.PollInterval <= 0 {
		return &ConfigError{Key: "stream.poll_interval", Err: errors.New("must be positive")}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return &ConfigError{Key: "kafka.brokers", Err: errors.New("cannot be empty when kafka is enabled")}
	}
	if c.Processor.NumWorkers <= 0 {
		return &ConfigError{Key: "processor.num_workers", Err: errors.New("must be positive")}
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
