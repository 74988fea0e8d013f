package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.Dashboard.JWTSecret = "secret"
	cfg.Dashboard.RequireAuth = true
	cfg.Scheduler.Jobs = []Job{{Name: "rules", Cron: "*/30 * * * *", Message: "Read the rules."}}
	return cfg
}

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid, got: %v", err)
	}
	if err := validBaseConfig().Validate(); err != nil {
		t.Fatalf("base config should be valid, got: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "room url must be websocket", mutate: func(c *Config) { c.Room.URL = "http://example.com" }},
		{name: "room url must not be empty", mutate: func(c *Config) { c.Room.URL = "" }},
		{name: "channel required", mutate: func(c *Config) { c.Room.Channel = "" }},
		{name: "username required", mutate: func(c *Config) { c.Room.Username = "" }},
		{name: "handshake timeout > 0", mutate: func(c *Config) { c.Room.HandshakeTimeout = 0 }},
		{name: "pong timeout > ping interval", mutate: func(c *Config) { c.Room.PongTimeout = c.Room.PingInterval }},
		{name: "max message length > 0", mutate: func(c *Config) { c.Room.MaxMessageLength = 0 }},
		{name: "trigger must compile", mutate: func(c *Config) { c.Commands.Trigger = "([" }},
		{name: "trigger must not be empty", mutate: func(c *Config) { c.Commands.Trigger = "" }},
		{name: "hybrid capability not empty", mutate: func(c *Config) {
			c.Permissions.Hybrid = map[string][]string{"alice": {""}}
		}},
		{name: "unknown store backend", mutate: func(c *Config) { c.Store.Backend = "sqlite" }},
		{name: "redis needs address", mutate: func(c *Config) {
			c.Store.Backend = StoreRedis
			c.Store.Redis.Address = ""
		}},
		{name: "pebble needs path", mutate: func(c *Config) {
			c.Store.Backend = StorePebble
			c.Store.Pebble.Path = ""
		}},
		{name: "retry delays ordered", mutate: func(c *Config) { c.Store.Retry.MaxDelay = time.Millisecond }},
		{name: "breaker threshold > 0", mutate: func(c *Config) { c.Store.CircuitBreaker.FailureThreshold = 0 }},
		{name: "auth needs secret", mutate: func(c *Config) { c.Dashboard.JWTSecret = "" }},
		{name: "dashboard rps > 0", mutate: func(c *Config) { c.Dashboard.RateLimit.RequestsPerSecond = 0 }},
		{name: "tracing sample rate range", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2
		}},
		{name: "prune cron valid", mutate: func(c *Config) { c.Scheduler.PruneCron = "every hour" }},
		{name: "job cron valid", mutate: func(c *Config) { c.Scheduler.Jobs[0].Cron = "* * *" }},
		{name: "backup cron valid", mutate: func(c *Config) { c.Scheduler.Backup.Cron = "daily" }},
		{name: "backup dir required", mutate: func(c *Config) { c.Scheduler.Backup.Cron = "@daily"; c.Scheduler.Backup.Dir = "" }},
		{name: "cache ttl >= 0", mutate: func(c *Config) { c.Store.CacheTTL = -time.Second }},
		{name: "job message required", mutate: func(c *Config) { c.Scheduler.Jobs[0].Message = "  " }},
		{name: "job names unique", mutate: func(c *Config) {
			c.Scheduler.Jobs = append(c.Scheduler.Jobs, c.Scheduler.Jobs[0])
		}},
		{name: "queue retry delay > 0", mutate: func(c *Config) { c.Queue.RetryDelay = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestValidate_DisabledSectionsIgnoreValues(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Dashboard.Enabled = false
	cfg.Dashboard.Address = ""
	cfg.Dashboard.JWTSecret = ""
	cfg.Scheduler.Enabled = false
	cfg.Scheduler.Jobs[0].Cron = "bogus"
	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled sections to be ignored, got: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Commands.Trigger != `^[.!]` {
		t.Errorf("trigger = %q, want default", cfg.Commands.Trigger)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roombot.yaml")
	yamlData := `
room:
  url: wss://rooms.example.com/socket
  channel: movies
  username: dj
commands:
  trigger: "^!"
  blacklist: [otherbot]
permissions:
  hybrid:
    alice: [mute]
scheduler:
  jobs:
    - name: rules
      cron: "0 * * * *"
      message: Be nice.
`
	if err := os.WriteFile(path, []byte(yamlData), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROOMBOT_CHANNEL", "anime")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Room.Channel != "anime" {
		t.Errorf("channel = %q, want env override", cfg.Room.Channel)
	}
	if cfg.Room.Username != "dj" || cfg.Commands.Trigger != "^!" {
		t.Errorf("file values not applied: %+v", cfg.Room)
	}
	if got := cfg.Permissions.Hybrid["alice"]; len(got) != 1 || got[0] != "mute" {
		t.Errorf("hybrid = %v", got)
	}
	if cfg.Room.PingInterval != 30*time.Second {
		t.Errorf("default ping interval lost: %v", cfg.Room.PingInterval)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("room: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Store.Backend != StorePebble || cfg.Scheduler.Backup.Keep != 7 {
		t.Errorf("example values not applied: backend=%q keep=%d", cfg.Store.Backend, cfg.Scheduler.Backup.Keep)
	}
	if cfg.Store.Redis.LeaseTTL != 30*time.Second {
		t.Errorf("lease ttl = %v", cfg.Store.Redis.LeaseTTL)
	}
}
