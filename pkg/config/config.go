package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		Dashboard       bool          `yaml:"dashboard" default:"true"`
		RateLimit       struct {
			Enabled      bool    `yaml:"enabled" default:"true"`
			Capacity     int     `yaml:"capacity" default:"60"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"1"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Log struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxBackups int    `yaml:"max_backups" default:"5"`
		MaxAgeDays int    `yaml:"max_age_days" default:"28"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool `yaml:"enabled" default:"true"`
	} `yaml:"metrics"`
	Alpaca struct {
		KeyID           string        `yaml:"key_id"`
		SecretKey       string        `yaml:"secret_key"`
		DataURL         string        `yaml:"data_url" default:"https://data.alpaca.markets" validate:"url"`
		Feed            string        `yaml:"feed" default:"sip" validate:"oneof=sip iex otc"`
		Adjustment      string        `yaml:"adjustment" default:"raw" validate:"oneof=raw split dividend all"`
		Limit           int           `yaml:"limit" default:"1000" validate:"gt=0"`
		Client          string        `yaml:"client" default:"rest" validate:"oneof=rest sdk"`
		RateLimitPerMin int           `yaml:"rate_limit_per_min" default:"200" validate:"gte=0"`
		Timeout         time.Duration `yaml:"timeout" default:"15s"`
		DayFirst        bool          `yaml:"day_first"`
		PricesTTL       time.Duration `yaml:"prices_ttl" default:"15s"`
		LookbackDays    int           `yaml:"lookback_days" default:"365" validate:"gt=0"`
	} `yaml:"alpaca"`
	Cache struct {
		Backend       string        `yaml:"backend" default:"sqlite" validate:"oneof=sqlite postgres clickhouse redis layered memory"`
		Freshness     time.Duration `yaml:"freshness" default:"5m" validate:"gt=0"`
		StoreAbsent   bool          `yaml:"store_absent" default:"true"`
		SQLitePath    string        `yaml:"sqlite_path" default:"quantmini.db"`
		PostgresDSN   string        `yaml:"postgres_dsn"`
		Retention     time.Duration `yaml:"retention" default:"24h"`
		MemoryMaxSize int           `yaml:"memory_max_size"`
	} `yaml:"cache"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"quantmini"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"quantmini"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled          bool     `yaml:"enabled"`
		Brokers          []string `yaml:"brokers"`
		EventsTopic      string   `yaml:"events_topic" default:"quantmini.factors"`
		RequiredAcks     int      `yaml:"required_acks" default:"-1"`
		Compression      string   `yaml:"compression" default:"gzip" validate:"oneof=none gzip snappy lz4 zstd"`
		AutoCreateTopics bool     `yaml:"auto_create_topics"`
		LogCollector     struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"quantmini.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"log_collector"`
	} `yaml:"kafka"`
	Refresh struct {
		Workers    int           `yaml:"workers" default:"2"`
		MaxRetries int           `yaml:"max_retries" default:"3"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		JobTimeout time.Duration `yaml:"job_timeout" default:"2m"`
		DedupeTTL  time.Duration `yaml:"dedupe_ttl" default:"10m"`
		Symbols    []string      `yaml:"symbols"`
		Interval   time.Duration `yaml:"interval"`
		Timeframe  string        `yaml:"timeframe" default:"1Day"`
		Mode       string        `yaml:"mode" default:"series" validate:"oneof=latest series"`
	} `yaml:"refresh"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads and parses a YAML configuration file on top of the defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, applies environment overrides, then validates.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func read(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	firstOf := func(keys ...string) string {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				return v
			}
		}
		return ""
	}

	if v := firstOf("APCA_API_KEY_ID", "ALPACA_API_KEY"); v != "" {
		c.Alpaca.KeyID = v
	}
	if v := firstOf("APCA_API_SECRET_KEY", "ALPACA_API_SECRET"); v != "" {
		c.Alpaca.SecretKey = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		switch {
		case strings.HasPrefix(v, "postgres://"), strings.HasPrefix(v, "postgresql://"):
			c.Cache.Backend = "postgres"
			c.Cache.PostgresDSN = v
		case strings.HasPrefix(v, "sqlite://"):
			c.Cache.Backend = "sqlite"
			c.Cache.SQLitePath = strings.TrimPrefix(strings.TrimPrefix(v, "sqlite://"), "/")
		default:
			return fmt.Errorf("DATABASE_URL: unsupported scheme in %q", v)
		}
	}
	if v := getenv("CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR: %w", err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("REDIS_ADDR port: %w", err)
		}
		c.Redis.Enabled = true
		c.Redis.Host = host
		c.Redis.Port = p
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Enabled = true
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.Server.Port = p
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case "postgres":
		if c.Cache.PostgresDSN == "" {
			return fmt.Errorf("cache.postgres_dsn is required for the postgres backend")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for the clickhouse backend")
		}
	case "redis", "layered":
		if !c.Redis.Enabled {
			return fmt.Errorf("redis.enabled must be true for the %s backend", c.Cache.Backend)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

// RedisAddr returns host:port for the Redis connection.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))
}
