// Package config loads and validates service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/postpipe/internal/provider"
)

const (
	// DefaultCheckInterval is how often the checker polls the queue.
	DefaultCheckInterval = time.Hour

	// DefaultMaxRetries is the failed-attempt threshold before an item is
	// marked failed.
	DefaultMaxRetries = 3

	defaultServerAddress = ":8080"
	defaultReadTimeout   = 10 * time.Second
	defaultWriteTimeout  = 30 * time.Second
)

// Config is the root configuration.
type Config struct {
	Debug     bool              `yaml:"debug"`
	Server    ServerConfig      `yaml:"server"`
	Postgres  PostgresConfig    `yaml:"postgres"`
	Redis     RedisConfig       `yaml:"redis"`
	Pipeline  PipelineConfig    `yaml:"pipeline"`
	Providers []provider.Config `yaml:"providers"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// PostgresConfig configures the content store connection.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig configures the command/report bus.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PipelineConfig configures the publishing pipeline. Enabled is a pointer
// so an absent key defaults to true rather than false.
type PipelineConfig struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	Enabled       *bool         `yaml:"enabled"`
	MaxRetries    int           `yaml:"max_retries"`
}

// IsEnabled resolves the enabled flag with its default of true.
func (p PipelineConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Validate checks the configuration after defaults and env overrides.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Postgres.Host == "" {
		return errors.New("postgres.host is required")
	}
	if c.Pipeline.CheckInterval <= 0 {
		return fmt.Errorf("pipeline.check_interval must be positive, got %v", c.Pipeline.CheckInterval)
	}
	if c.Pipeline.MaxRetries <= 0 {
		return fmt.Errorf("pipeline.max_retries must be positive, got %d", c.Pipeline.MaxRetries)
	}
	for i, p := range c.Providers {
		if p.Platform == "" {
			return fmt.Errorf("providers[%d].platform is required", i)
		}
		if p.URL == "" {
			return fmt.Errorf("providers[%d].url is required", i)
		}
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultServerAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Pipeline.CheckInterval == 0 {
		cfg.Pipeline.CheckInterval = DefaultCheckInterval
	}
	if cfg.Pipeline.MaxRetries == 0 {
		cfg.Pipeline.MaxRetries = DefaultMaxRetries
	}
	if cfg.Postgres.Port == "" {
		cfg.Postgres.Port = "5432"
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
}

func overrideWithEnvVars(cfg *Config) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		cfg.Postgres.Host = host
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		cfg.Postgres.Port = port
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		cfg.Postgres.User = user
	}
	if password := os.Getenv("POSTGRES_PASSWORD"); password != "" {
		cfg.Postgres.Password = password
	}
	if dbname := os.Getenv("POSTGRES_DB"); dbname != "" {
		cfg.Postgres.DBName = dbname
	}
	if port := os.Getenv("POSTPIPE_PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}
	if interval := os.Getenv("PIPELINE_CHECK_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Pipeline.CheckInterval = d
		}
	}
	if enabled := os.Getenv("PIPELINE_ENABLED"); enabled != "" {
		v := parseBool(enabled)
		cfg.Pipeline.Enabled = &v
	}
	if debug := os.Getenv("APP_DEBUG"); debug != "" {
		cfg.Debug = parseBool(debug)
	}
}

// Load reads, defaults, env-overrides and validates the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool accepts "true", "1" and "yes" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
