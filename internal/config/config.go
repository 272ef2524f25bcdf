// Package config loads the tokenguard-janitor process configuration from a
// YAML file and environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/civicpulse/tokenguard"
)

// Config is the janitor's root configuration. Sources in descending priority:
//  1. explicit --config path;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. environment variables only.
//
// Environment variables are always overlaid on top of a file.
type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP    HTTPConfig    `yaml:"http"`
	Redis   RedisConfig   `yaml:"redis"`
	DB      DBConfig      `yaml:"db"`
	Refresh RefreshConfig `yaml:"refresh"`
	Janitor JanitorConfig `yaml:"janitor"`
}

// HTTPConfig is the probe and metrics listener.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"9090"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

type RedisConfig struct {
	URL         string        `yaml:"url" env:"REDIS_URL"`
	Prefix      string        `yaml:"prefix" env:"REDIS_PREFIX" env-default:"tg:"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"3s"`
}

type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
	SkipMigrate bool   `yaml:"skip_migrate" env:"DB_SKIP_MIGRATE"`
}

// RefreshConfig mirrors the refresh-token policy the serving processes use.
// Retention is the only field cleanup reads; the rest keep the security report
// accurate.
type RefreshConfig struct {
	DeviceLimit int           `yaml:"device_limit" env:"REFRESH_DEVICE_LIMIT" env-default:"10"`
	Lifetime    time.Duration `yaml:"lifetime" env:"REFRESH_LIFETIME" env-default:"720h"`
	RememberMe  time.Duration `yaml:"remember_me_lifetime" env:"REFRESH_REMEMBER_ME_LIFETIME" env-default:"2160h"`
	GracePeriod time.Duration `yaml:"grace_period" env:"REFRESH_GRACE_PERIOD" env-default:"30s"`
	Retention   time.Duration `yaml:"retention" env:"REFRESH_RETENTION" env-default:"168h"`
	// HashKeyHex is the hex-encoded HMAC key for token digests.
	HashKeyHex string `yaml:"hash_key_hex" env:"REFRESH_HASH_KEY_HEX"`
}

type JanitorConfig struct {
	Interval time.Duration `yaml:"interval" env:"JANITOR_INTERVAL" env-default:"30m"`
	Timeout  time.Duration `yaml:"timeout" env:"JANITOR_TIMEOUT" env-default:"1m"`
}

// EngineConfig converts the process configuration into a tokenguard.Config.
func (c *Config) EngineConfig() (tokenguard.Config, error) {
	out := tokenguard.DefaultConfig()
	out.KV.URL = c.Redis.URL
	out.KV.Prefix = c.Redis.Prefix
	out.KV.DialTimeout = c.Redis.DialTimeout
	out.RefreshStore.DatabaseURL = c.DB.DatabaseURL
	out.RefreshStore.AutoMigrate = !c.DB.SkipMigrate
	out.RefreshStore.RequireDurable = true
	out.Refresh.DeviceLimit = c.Refresh.DeviceLimit
	out.Refresh.Lifetime = c.Refresh.Lifetime
	out.Refresh.RememberMeLifetime = c.Refresh.RememberMe
	out.Refresh.GracePeriod = c.Refresh.GracePeriod
	out.Refresh.Retention = c.Refresh.Retention

	if c.Refresh.HashKeyHex != "" {
		key, err := hex.DecodeString(c.Refresh.HashKeyHex)
		if err != nil {
			return tokenguard.Config{}, fmt.Errorf("decode refresh hash key: %w", err)
		}
		out.Refresh.HashKey = key
	}
	if c.Janitor.Interval <= 0 {
		return tokenguard.Config{}, fmt.Errorf("janitor interval must be > 0")
	}

	if err := out.Validate(); err != nil {
		return tokenguard.Config{}, err
	}
	return out, nil
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the configuration following the priority documented on [Config].
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}
		return &cfg, nil
	}

	if path != "" {
		return tryRead(path)
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return &cfg, nil
}
