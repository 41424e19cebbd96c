package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable read by Load.
// CRASHD_DATABASE_MAX_OPEN_CONNS maps to the key database.max_open_conns.
const EnvPrefix = "CRASHD_"

// Config holds all configuration for the crashd server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Cache    CacheConfig    `koanf:"cache"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	MigrationsDir   string        `koanf:"migrations_dir"`
}

type RedisConfig struct {
	URL string `koanf:"url"`
}

type CacheConfig struct {
	GroupTTL time.Duration `koanf:"group_ttl"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":                8080,
		"server.env":                 "development",
		"database.max_open_conns":    25,
		"database.max_idle_conns":    5,
		"database.conn_max_lifetime": "5m",
		"database.migrations_dir":    "migrations",
		"cache.group_ttl":            "5m",
	}
}

// Load builds the configuration from defaults, then the optional TOML file at
// path, then CRASHD_* environment variables, and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envValue skips empty variables so that an exported but blank CRASHD_* value
// behaves like an unset one.
func envValue(key, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	return envKey(key), value
}

// envKey turns CRASHD_SECTION_SOME_KEY into section.some_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok || key == "" {
		return ""
	}
	return section + "." + key
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("CRASHD_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("CRASHD_DATABASE_URL is required")
	}
	if !strings.HasPrefix(c.Database.URL, "postgres://") && !strings.HasPrefix(c.Database.URL, "postgresql://") {
		return fmt.Errorf("CRASHD_DATABASE_URL must start with postgres:// or postgresql://, got %q", c.Database.URL)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("CRASHD_DATABASE_MAX_OPEN_CONNS must be positive, got %d", c.Database.MaxOpenConns)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("CRASHD_DATABASE_MAX_IDLE_CONNS (%d) cannot exceed CRASHD_DATABASE_MAX_OPEN_CONNS (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("CRASHD_REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("CRASHD_REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Cache.GroupTTL <= 0 {
		return fmt.Errorf("CRASHD_CACHE_GROUP_TTL must be a positive duration, got %s", c.Cache.GroupTTL)
	}

	return nil
}
