package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevStubSecret signs stub tokens when IDENTITY_STUB_SECRET is unset.
const DevStubSecret = "gestio-dev-only-secret"

// StubConfig configures the development identity server.
type StubConfig struct {
	HTTPAddr   string `mapstructure:"IDENTITY_STUB_ADDR"`
	Secret     string `mapstructure:"IDENTITY_STUB_SECRET"`
	AccessTTL  string `mapstructure:"IDENTITY_STUB_ACCESS_TTL"`
	RefreshTTL string `mapstructure:"IDENTITY_STUB_REFRESH_TTL"`
	// SeedPassword is the password of the seeded accounts.
	SeedPassword string `mapstructure:"IDENTITY_STUB_SEED_PASSWORD"`

	LogLevel string `mapstructure:"CONSOLE_LOG_LEVEL"`
	LogDev   bool   `mapstructure:"CONSOLE_LOG_DEV"`
}

// LoadStub reads .env (if present) and the environment into StubConfig.
func LoadStub() (*StubConfig, error) {
	return loadStub(".env")
}

func loadStub(envFile string) (*StubConfig, error) {
	v := viper.New()
	if err := readEnvFile(v, envFile); err != nil {
		return nil, err
	}
	v.AutomaticEnv()

	v.SetDefault("IDENTITY_STUB_ADDR", "127.0.0.1:8701")
	v.SetDefault("IDENTITY_STUB_SECRET", DevStubSecret)
	v.SetDefault("IDENTITY_STUB_ACCESS_TTL", "15m")
	v.SetDefault("IDENTITY_STUB_REFRESH_TTL", "24h")
	v.SetDefault("IDENTITY_STUB_SEED_PASSWORD", "gestio123")
	v.SetDefault("CONSOLE_LOG_LEVEL", "info")
	v.SetDefault("CONSOLE_LOG_DEV", false)

	var cfg StubConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		return nil, errors.New("config: IDENTITY_STUB_ADDR must be set")
	}
	if len(cfg.Secret) < 16 {
		return nil, errors.New("config: IDENTITY_STUB_SECRET must be at least 16 bytes")
	}
	if len(cfg.SeedPassword) < 8 {
		return nil, errors.New("config: IDENTITY_STUB_SEED_PASSWORD must be at least 8 characters")
	}
	return &cfg, nil
}

// AccessTokenTTL parses AccessTTL, defaulting to 15m.
func (c *StubConfig) AccessTokenTTL() time.Duration {
	return parseDuration(c.AccessTTL, 15*time.Minute)
}

// RefreshTokenTTL parses RefreshTTL, defaulting to 24h.
func (c *StubConfig) RefreshTokenTTL() time.Duration {
	return parseDuration(c.RefreshTTL, 24*time.Hour)
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
