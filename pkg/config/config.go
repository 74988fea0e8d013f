package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StorePebble = "pebble"
)

type Config struct {
	Room struct {
		URL              string        `yaml:"url"`
		Channel          string        `yaml:"channel"`
		Username         string        `yaml:"username"`
		Password         string        `yaml:"password"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		PingInterval     time.Duration `yaml:"ping_interval"`
		PongTimeout      time.Duration `yaml:"pong_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxMessageLength int           `yaml:"max_message_length"`
	} `yaml:"room"`

	Commands struct {
		Trigger       string   `yaml:"trigger"`
		Blacklist     []string `yaml:"blacklist"`
		ModBypassRank int      `yaml:"mod_bypass_rank"`
	} `yaml:"commands"`

	Permissions struct {
		// Hybrid grants named capabilities to specific users regardless of rank.
		Hybrid map[string][]string `yaml:"hybrid"`
	} `yaml:"permissions"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Store struct {
		Backend string `yaml:"backend"`
		Redis   struct {
			Address  string `yaml:"address"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
			Prefix   string `yaml:"prefix"`
			// LeaseTTL guards the channel against a second bot instance.
			// Zero disables the lease.
			LeaseTTL time.Duration `yaml:"lease_ttl"`
		} `yaml:"redis"`
		Pebble struct {
			Path string `yaml:"path"`
		} `yaml:"pebble"`
		Retry struct {
			Enabled      bool          `yaml:"enabled"`
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"retry"`
		CircuitBreaker struct {
			FailureThreshold int           `yaml:"failure_threshold"`
			Timeout          time.Duration `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
		// CacheTTL caches block lookups in front of the backend. Zero disables.
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"store"`

	Dashboard struct {
		Enabled         bool          `yaml:"enabled"`
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		JWTSecret       string        `yaml:"jwt_secret"`
		RequireAuth     bool          `yaml:"require_auth"`
		TokenTTL        time.Duration `yaml:"token_ttl"`
		RateLimit       struct {
			Enabled           bool    `yaml:"enabled"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"dashboard"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Scheduler struct {
		Enabled   bool   `yaml:"enabled"`
		PruneCron string `yaml:"prune_cron"`
		Jobs      []Job  `yaml:"jobs"`
		Backup    struct {
			Cron string `yaml:"cron"`
			Dir  string `yaml:"dir"`
			Keep int    `yaml:"keep"`
		} `yaml:"backup"`
	} `yaml:"scheduler"`

	Queue struct {
		RetryAttempts int           `yaml:"retry_attempts"`
		RetryDelay    time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
}

// Job is a cron-scheduled chat announcement.
type Job struct {
	Name    string `yaml:"name"`
	Cron    string `yaml:"cron"`
	Message string `yaml:"message"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Room
	if c.Room.URL == "" {
		return fmt.Errorf("room.url must not be empty")
	}
	u, err := url.Parse(c.Room.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("room.url must be a ws:// or wss:// url, got %q", c.Room.URL)
	}
	if c.Room.Channel == "" {
		return fmt.Errorf("room.channel must not be empty")
	}
	if c.Room.Username == "" {
		return fmt.Errorf("room.username must not be empty")
	}
	if c.Room.HandshakeTimeout <= 0 {
		return fmt.Errorf("room.handshake_timeout must be > 0")
	}
	if c.Room.PingInterval <= 0 {
		return fmt.Errorf("room.ping_interval must be > 0")
	}
	if c.Room.PongTimeout <= c.Room.PingInterval {
		return fmt.Errorf("room.pong_timeout must be > room.ping_interval")
	}
	if c.Room.WriteTimeout <= 0 {
		return fmt.Errorf("room.write_timeout must be > 0")
	}
	if c.Room.MaxMessageLength <= 0 {
		return fmt.Errorf("room.max_message_length must be > 0")
	}

	// Commands
	if c.Commands.Trigger == "" {
		return fmt.Errorf("commands.trigger must not be empty")
	}
	if _, err := regexp.Compile(c.Commands.Trigger); err != nil {
		return fmt.Errorf("commands.trigger is not a valid pattern: %w", err)
	}
	if c.Commands.ModBypassRank < 0 {
		return fmt.Errorf("commands.mod_bypass_rank must be >= 0")
	}

	// Permissions
	for user, caps := range c.Permissions.Hybrid {
		if strings.TrimSpace(user) == "" {
			return fmt.Errorf("permissions.hybrid has an empty user name")
		}
		for _, capName := range caps {
			if strings.TrimSpace(capName) == "" {
				return fmt.Errorf("permissions.hybrid.%s has an empty capability", user)
			}
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Store
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.Redis.Address == "" {
			return fmt.Errorf("store.redis.address must not be empty when store.backend=redis")
		}
		if c.Store.Redis.PoolSize <= 0 {
			return fmt.Errorf("store.redis.pool_size must be > 0 when store.backend=redis")
		}
	case StorePebble:
		if c.Store.Pebble.Path == "" {
			return fmt.Errorf("store.pebble.path must not be empty when store.backend=pebble")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, redis, pebble; got %q", c.Store.Backend)
	}
	if c.Store.Retry.Enabled {
		if c.Store.Retry.MaxAttempts < 0 {
			return fmt.Errorf("store.retry.max_attempts must be >= 0")
		}
		if c.Store.Retry.InitialDelay <= 0 || c.Store.Retry.MaxDelay < c.Store.Retry.InitialDelay {
			return fmt.Errorf("store.retry delays must satisfy 0 < initial_delay <= max_delay")
		}
	}
	if c.Store.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("store.circuit_breaker.failure_threshold must be > 0")
	}
	if c.Store.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("store.circuit_breaker.timeout must be > 0")
	}
	if c.Store.CacheTTL < 0 {
		return fmt.Errorf("store.cache_ttl must be >= 0")
	}
	if c.Store.Redis.LeaseTTL < 0 {
		return fmt.Errorf("store.redis.lease_ttl must be >= 0")
	}

	// Dashboard
	if c.Dashboard.Enabled {
		if c.Dashboard.Address == "" {
			return fmt.Errorf("dashboard.address must not be empty when dashboard.enabled=true")
		}
		if c.Dashboard.ReadTimeout <= 0 || c.Dashboard.WriteTimeout <= 0 || c.Dashboard.ShutdownTimeout <= 0 {
			return fmt.Errorf("dashboard timeouts must be > 0")
		}
		if c.Dashboard.RequireAuth && c.Dashboard.JWTSecret == "" {
			return fmt.Errorf("dashboard.jwt_secret must not be empty when dashboard.require_auth=true")
		}
		if c.Dashboard.RateLimit.Enabled {
			if c.Dashboard.RateLimit.RequestsPerSecond <= 0 {
				return fmt.Errorf("dashboard.rate_limit.requests_per_second must be > 0 when rate limiting is enabled")
			}
			if c.Dashboard.RateLimit.Burst <= 0 {
				return fmt.Errorf("dashboard.rate_limit.burst must be > 0 when rate limiting is enabled")
			}
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Scheduler
	if c.Scheduler.Enabled {
		if c.Scheduler.PruneCron != "" && !gronx.IsValid(c.Scheduler.PruneCron) {
			return fmt.Errorf("scheduler.prune_cron is not a valid cron expression: %q", c.Scheduler.PruneCron)
		}
		if b := c.Scheduler.Backup; b.Cron != "" {
			if !gronx.IsValid(b.Cron) {
				return fmt.Errorf("scheduler.backup.cron is not a valid cron expression: %q", b.Cron)
			}
			if b.Dir == "" {
				return fmt.Errorf("scheduler.backup.dir must not be empty when scheduler.backup.cron is set")
			}
			if b.Keep < 0 {
				return fmt.Errorf("scheduler.backup.keep must be >= 0")
			}
		}
		seen := make(map[string]bool, len(c.Scheduler.Jobs))
		for i, job := range c.Scheduler.Jobs {
			if job.Name == "" {
				return fmt.Errorf("scheduler.jobs[%d].name must not be empty", i)
			}
			if seen[job.Name] {
				return fmt.Errorf("scheduler.jobs[%d].name %q is duplicated", i, job.Name)
			}
			seen[job.Name] = true
			if !gronx.IsValid(job.Cron) {
				return fmt.Errorf("scheduler.jobs[%d].cron is not a valid cron expression: %q", i, job.Cron)
			}
			if strings.TrimSpace(job.Message) == "" {
				return fmt.Errorf("scheduler.jobs[%d].message must not be empty", i)
			}
		}
	}

	// Queue
	if c.Queue.RetryAttempts < 0 {
		return fmt.Errorf("queue.retry_attempts must be >= 0")
	}
	if c.Queue.RetryDelay <= 0 {
		return fmt.Errorf("queue.retry_delay must be > 0")
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults, .env and
// environment overrides, then validates. A missing file yields defaults.
func Load(configPath string) (*Config, error) {
	// .env is a local development convenience; production sets real env vars.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Room.URL = "ws://localhost:8081/socket"
	cfg.Room.Channel = "lobby"
	cfg.Room.Username = "roombot"
	cfg.Room.HandshakeTimeout = 15 * time.Second
	cfg.Room.PingInterval = 30 * time.Second
	cfg.Room.PongTimeout = 60 * time.Second
	cfg.Room.WriteTimeout = 10 * time.Second
	cfg.Room.MaxMessageLength = 240

	cfg.Commands.Trigger = `^[.!]`
	cfg.Commands.ModBypassRank = 3 // moderator

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Store.Backend = StoreMemory
	cfg.Store.Redis.Address = "localhost:6379"
	cfg.Store.Redis.PoolSize = 10
	cfg.Store.Redis.Prefix = "roombot:"
	cfg.Store.Pebble.Path = "data/roombot.pebble"
	cfg.Store.Retry.Enabled = true
	cfg.Store.Retry.MaxAttempts = 2
	cfg.Store.Retry.InitialDelay = 100 * time.Millisecond
	cfg.Store.Retry.MaxDelay = time.Second
	cfg.Store.CircuitBreaker.FailureThreshold = 5
	cfg.Store.CircuitBreaker.Timeout = 30 * time.Second
	cfg.Store.CacheTTL = 30 * time.Second
	cfg.Store.Redis.LeaseTTL = 30 * time.Second

	cfg.Dashboard.Enabled = true
	cfg.Dashboard.Address = ":8080"
	cfg.Dashboard.ReadTimeout = 15 * time.Second
	cfg.Dashboard.WriteTimeout = 15 * time.Second
	cfg.Dashboard.ShutdownTimeout = 10 * time.Second
	cfg.Dashboard.TokenTTL = 24 * time.Hour
	cfg.Dashboard.RateLimit.Enabled = true
	cfg.Dashboard.RateLimit.RequestsPerSecond = 5
	cfg.Dashboard.RateLimit.Burst = 20

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Scheduler.Enabled = true
	cfg.Scheduler.PruneCron = "@hourly"
	cfg.Scheduler.Backup.Dir = "data/backups"
	cfg.Scheduler.Backup.Keep = 7

	cfg.Queue.RetryAttempts = 3
	cfg.Queue.RetryDelay = 2 * time.Second

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ROOMBOT_ROOM_URL"); v != "" {
		c.Room.URL = v
	}
	if v := os.Getenv("ROOMBOT_CHANNEL"); v != "" {
		c.Room.Channel = v
	}
	if v := os.Getenv("ROOMBOT_USERNAME"); v != "" {
		c.Room.Username = v
	}
	if v := os.Getenv("ROOMBOT_PASSWORD"); v != "" {
		c.Room.Password = v
	}
	if v := os.Getenv("ROOMBOT_TRIGGER"); v != "" {
		c.Commands.Trigger = v
	}
	if v := os.Getenv("ROOMBOT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ROOMBOT_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("ROOMBOT_REDIS_ADDRESS"); v != "" {
		c.Store.Redis.Address = v
	}
	if v := os.Getenv("ROOMBOT_REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("ROOMBOT_DASHBOARD_ADDRESS"); v != "" {
		c.Dashboard.Address = v
	}
	if v := os.Getenv("ROOMBOT_JWT_SECRET"); v != "" {
		c.Dashboard.JWTSecret = v
	}
}
