package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Occupancy  OccupancyConfig  `yaml:"occupancy"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" env:"SLACKSPOT_PORT"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec" env:"SLACKSPOT_RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" env:"SLACKSPOT_RATE_LIMIT_BURST"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds" env:"SLACKSPOT_CACHE_TTL_SECONDS"`
	ShutdownSeconds int           `yaml:"shutdown_seconds" env:"SLACKSPOT_SHUTDOWN_SECONDS"`
	CacheTTL        time.Duration `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" env:"SLACKSPOT_DATABASE_DRIVER"`
	DSN                    string `yaml:"dsn" env:"SLACKSPOT_DATABASE_DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns" env:"SLACKSPOT_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns           int    `yaml:"max_idle_conns" env:"SLACKSPOT_DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" env:"SLACKSPOT_DATABASE_CONN_MAX_LIFETIME_MINUTES"`
	LogSQL                 bool   `yaml:"log_sql" env:"SLACKSPOT_DATABASE_LOG_SQL"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	// Backend is "sql" (the database above) or "redis".
	Backend string `yaml:"backend" env:"SLACKSPOT_STORE_BACKEND"`
}

// RedisConfig holds the Redis connection used by the redis store backend.
type RedisConfig struct {
	URL       string `yaml:"url" env:"SLACKSPOT_REDIS_URL"`
	KeyPrefix string `yaml:"key_prefix" env:"SLACKSPOT_REDIS_KEY_PREFIX"`
}

// SweeperConfig holds the expiry sweep schedule.
type SweeperConfig struct {
	Enabled bool `yaml:"enabled" env:"SLACKSPOT_SWEEPER_ENABLED"`

	// TickIntervalMinutes is how often the timer fires.
	TickIntervalMinutes int `yaml:"tick_interval_minutes" env:"SLACKSPOT_SWEEPER_TICK_INTERVAL_MINUTES"`

	// SweepIntervalMinutes is the minimum time between two scans of all users,
	// enforced through the persisted last-sweep timestamp.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" env:"SLACKSPOT_SWEEPER_SWEEP_INTERVAL_MINUTES"`

	// SkipRosterRepair disables removal of roster entries whose user points elsewhere.
	SkipRosterRepair bool `yaml:"skip_roster_repair" env:"SLACKSPOT_SWEEPER_SKIP_ROSTER_REPAIR"`

	TickInterval  time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`
}

// OccupancyConfig bounds check-in durations.
type OccupancyConfig struct {
	DefaultDurationHours float64 `yaml:"default_duration_hours" env:"SLACKSPOT_DEFAULT_DURATION_HOURS"`
	MaxDurationHours     float64 `yaml:"max_duration_hours" env:"SLACKSPOT_MAX_DURATION_HOURS"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" env:"SLACKSPOT_VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" env:"SLACKSPOT_VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject" env:"SLACKSPOT_PUSH_SUBJECT"`
	TTL        int    `yaml:"ttl" env:"SLACKSPOT_PUSH_TTL"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size" env:"SLACKSPOT_WORKER_POOL_SIZE"`
}

// Load reads the configuration from the given path, applies SLACKSPOT_*
// environment overrides and fills in defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	if cfg.Server.ShutdownSeconds <= 0 {
		cfg.Server.ShutdownSeconds = 5
	}
	cfg.Server.ShutdownTimeout = time.Duration(cfg.Server.ShutdownSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sql"
	}
	switch cfg.Store.Backend {
	case "sql":
	case "redis":
		if cfg.Redis.URL == "" {
			return fmt.Errorf("store.backend is redis but redis.url is empty")
		}
	default:
		return fmt.Errorf("store.backend must be sql or redis, got %q", cfg.Store.Backend)
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "slackspot"
	}

	if cfg.Sweeper.TickIntervalMinutes <= 0 {
		cfg.Sweeper.TickIntervalMinutes = 1
	}
	if cfg.Sweeper.SweepIntervalMinutes <= 0 {
		cfg.Sweeper.SweepIntervalMinutes = 5
	}
	cfg.Sweeper.TickInterval = time.Duration(cfg.Sweeper.TickIntervalMinutes) * time.Minute
	cfg.Sweeper.SweepInterval = time.Duration(cfg.Sweeper.SweepIntervalMinutes) * time.Minute

	if cfg.Occupancy.MaxDurationHours <= 0 {
		cfg.Occupancy.MaxDurationHours = 24
	}
	if cfg.Occupancy.DefaultDurationHours <= 0 {
		cfg.Occupancy.DefaultDurationHours = 2
	}
	if cfg.Occupancy.DefaultDurationHours > cfg.Occupancy.MaxDurationHours {
		return fmt.Errorf("occupancy.default_duration_hours (%v) exceeds max_duration_hours (%v)",
			cfg.Occupancy.DefaultDurationHours, cfg.Occupancy.MaxDurationHours)
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	return nil
}
