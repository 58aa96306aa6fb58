// Package config loads and validates console agent configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends accepted by CONSOLE_STORE.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds console agent configuration.
type Config struct {
	// HTTPAddr is the address the console HTTP surface listens on.
	HTTPAddr string `mapstructure:"CONSOLE_HTTP_ADDR"`
	// GRPCAddr enables the gRPC health endpoint when set (e.g. :9090).
	GRPCAddr string `mapstructure:"CONSOLE_GRPC_ADDR"`

	// IdentityURL is the base URL of the remote identity API.
	IdentityURL string `mapstructure:"CONSOLE_IDENTITY_URL"`
	// IdentityTimeout bounds every call to the identity API (e.g. "10s").
	IdentityTimeout string `mapstructure:"CONSOLE_IDENTITY_TIMEOUT"`

	// Store selects the persistent key-value backend: memory, file, redis or postgres.
	Store string `mapstructure:"CONSOLE_STORE"`
	// StoreFile is the JSON document used by the file backend.
	StoreFile string `mapstructure:"CONSOLE_STORE_FILE"`
	// RedisAddr, RedisPassword, RedisDB and RedisPrefix configure the redis backend.
	RedisAddr     string `mapstructure:"CONSOLE_REDIS_ADDR"`
	RedisPassword string `mapstructure:"CONSOLE_REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"CONSOLE_REDIS_DB"`
	RedisPrefix   string `mapstructure:"CONSOLE_REDIS_PREFIX"`
	// DatabaseURL is the Postgres DSN for the postgres backend.
	DatabaseURL string `mapstructure:"CONSOLE_DATABASE_URL"`

	// SignInPath is where the route guard sends unauthenticated navigations.
	SignInPath string `mapstructure:"CONSOLE_SIGNIN_PATH"`

	// RateBurst and RatePerSecond configure the per-IP limiter on the HTTP surface.
	RateBurst     int `mapstructure:"CONSOLE_RATE_BURST"`
	RatePerSecond int `mapstructure:"CONSOLE_RATE_PER_SECOND"`

	// LogLevel is debug, info, warn or error; LogDev switches to the zap development encoder.
	LogLevel string `mapstructure:"CONSOLE_LOG_LEVEL"`
	LogDev   bool   `mapstructure:"CONSOLE_LOG_DEV"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	if err := readEnvFile(v, envFile); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	v.SetDefault("CONSOLE_HTTP_ADDR", "127.0.0.1:8700")
	v.SetDefault("CONSOLE_GRPC_ADDR", "")
	v.SetDefault("CONSOLE_IDENTITY_URL", "http://127.0.0.1:8701")
	v.SetDefault("CONSOLE_IDENTITY_TIMEOUT", "10s")
	v.SetDefault("CONSOLE_STORE", StoreFile)
	v.SetDefault("CONSOLE_STORE_FILE", defaultStoreFile())
	v.SetDefault("CONSOLE_REDIS_ADDR", "localhost:6379")
	v.SetDefault("CONSOLE_REDIS_PASSWORD", "")
	v.SetDefault("CONSOLE_REDIS_DB", 0)
	v.SetDefault("CONSOLE_REDIS_PREFIX", "gestio:console:")
	v.SetDefault("CONSOLE_DATABASE_URL", "")
	v.SetDefault("CONSOLE_SIGNIN_PATH", "/signin")
	v.SetDefault("CONSOLE_RATE_BURST", 60)
	v.SetDefault("CONSOLE_RATE_PER_SECOND", 30)
	v.SetDefault("CONSOLE_LOG_LEVEL", "info")
	v.SetDefault("CONSOLE_LOG_DEV", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: CONSOLE_HTTP_ADDR must be set")
	}
	u, err := url.Parse(c.IdentityURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: CONSOLE_IDENTITY_URL %q is not an absolute URL", c.IdentityURL)
	}
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case StoreMemory:
	case StoreFile:
		if strings.TrimSpace(c.StoreFile) == "" {
			return errors.New("config: CONSOLE_STORE_FILE must be set for the file store")
		}
	case StoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return errors.New("config: CONSOLE_REDIS_ADDR must be set for the redis store")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.New("config: CONSOLE_DATABASE_URL must be set for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown CONSOLE_STORE %q", c.Store)
	}
	if !strings.HasPrefix(c.SignInPath, "/") {
		return errors.New("config: CONSOLE_SIGNIN_PATH must start with /")
	}
	if c.RateBurst <= 0 || c.RatePerSecond <= 0 {
		return errors.New("config: CONSOLE_RATE_BURST and CONSOLE_RATE_PER_SECOND must be positive")
	}
	return nil
}

// IdentityCallTimeout parses IdentityTimeout. Returns 10s if unset or invalid.
func (c *Config) IdentityCallTimeout() time.Duration {
	return parseDuration(c.IdentityTimeout, 10*time.Second)
}

// readEnvFile merges envFile into v. A missing file is fine; a file that
// cannot be read or parsed is an error.
func readEnvFile(v *viper.Viper, envFile string) error {
	if envFile == "" {
		return nil
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil, errors.Is(err, fs.ErrNotExist), errors.As(err, &notFound):
		return nil
	default:
		return fmt.Errorf("config: read %s: %w", envFile, err)
	}
}

func defaultStoreFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "gestio-console.json")
	}
	return filepath.Join(home, ".gestio", "console.json")
}
