// Package config loads the prenos runtime configuration from built-in
// defaults, an optional config file and PRENOS_* environment variables, in
// increasing order of precedence. Command-line flags bound to the same viper
// instance take precedence over all three.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides, e.g.
// PRENOS_REDIS_ADDR for redis.addr.
const EnvPrefix = "PRENOS"

// Lock backends.
const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// Config is the full runtime configuration.
type Config struct {
	DB        string        `mapstructure:"db"`
	Addr      string        `mapstructure:"addr"`
	Log       string        `mapstructure:"log"`
	AdminUser string        `mapstructure:"admin_user"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Lock      Lock          `mapstructure:"lock"`
	Redis     Redis         `mapstructure:"redis"`
	Scheduler Scheduler     `mapstructure:"scheduler"`
	Undo      Undo          `mapstructure:"undo"`
}

// Lock selects where asset locks and execution guards live.
type Lock struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Redis holds the connection settings of the redis lock backend.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Scheduler configures the due-transfer poller and its workers.
type Scheduler struct {
	Interval    time.Duration `mapstructure:"interval"`
	Workers     int           `mapstructure:"workers"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	Lease       time.Duration `mapstructure:"lease"`
}

// Undo configures undo of completed transfers.
type Undo struct {
	Window time.Duration `mapstructure:"window"`
}

var defaults = map[string]any{
	"db":                     "prenos.sqlite3",
	"addr":                   ":8080",
	"log":                    "",
	"admin_user":             "admin",
	"token_ttl":              12 * time.Hour,
	"lock.backend":           LockMemory,
	"lock.ttl":               time.Hour,
	"redis.addr":             "localhost:6379",
	"redis.password":         "",
	"redis.db":               0,
	"scheduler.interval":     5 * time.Minute,
	"scheduler.workers":      4,
	"scheduler.max_attempts": 3,
	"scheduler.backoff":      2 * time.Second,
	"scheduler.lease":        10 * time.Minute,
	"undo.window":            24 * time.Hour,
}

// New returns a viper instance with defaults and environment overrides set
// up. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.DB == "" {
		errs = append(errs, errors.New("db must be set"))
	}
	switch c.Lock.Backend {
	case LockMemory:
	case LockRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr must be set for the redis lock backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock.backend %q", c.Lock.Backend))
	}
	if c.Lock.TTL <= 0 {
		errs = append(errs, errors.New("lock.ttl must be positive"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler.interval must be positive"))
	}
	if c.Scheduler.Workers < 1 {
		errs = append(errs, errors.New("scheduler.workers must be at least 1"))
	}
	if c.Scheduler.MaxAttempts < 1 {
		errs = append(errs, errors.New("scheduler.max_attempts must be at least 1"))
	}
	if c.Undo.Window <= 0 {
		errs = append(errs, errors.New("undo.window must be positive"))
	}
	return errors.Join(errs...)
}
