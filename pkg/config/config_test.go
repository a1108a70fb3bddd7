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
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.Command.Burst = 10
	cfg.RateLimiting.Command.RefillEvery = 500 * time.Millisecond
	return cfg
}

func TestValidate_RateLimitingDisabled_AllowsZeroValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = false
	// Zero out rate limiting values to ensure they are ignored when disabled.
	cfg.RateLimiting.Command.Burst = 0
	cfg.RateLimiting.Command.RefillEvery = 0
	cfg.RateLimiting.HTTP.Auth.Burst = 0
	cfg.RateLimiting.HTTP.API.Burst = 0
	cfg.RateLimiting.HTTP.WS.Burst = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected config to be valid when rate limiting disabled, got error: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "server address must not be empty",
			mutate: func(c *Config) {
				c.Server.Address = ""
			},
		},
		{
			name: "irc address must not be empty",
			mutate: func(c *Config) {
				c.IRC.Address = ""
			},
		},
		{
			name: "irc server name must not be empty",
			mutate: func(c *Config) {
				c.IRC.ServerName = ""
			},
		},
		{
			name: "tls requires cert and key",
			mutate: func(c *Config) {
				c.IRC.TLS.Enabled = true
				c.IRC.TLS.CertFile = ""
			},
		},
		{
			name: "pong timeout must exceed ping interval",
			mutate: func(c *Config) {
				c.Realtime.PongTimeout = c.Realtime.PingInterval
			},
		},
		{
			name: "max message length must be > 0",
			mutate: func(c *Config) {
				c.Limits.MaxMessageLength = 0
			},
		},
		{
			name: "history page max must be >= page size",
			mutate: func(c *Config) {
				c.Limits.HistoryPageMax = c.Limits.HistoryPageSize - 1
			},
		},
		{
			name: "connections per address must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.ConnectionsPerAddress = 0
			},
		},
		{
			name: "command burst must be > 0 when enabled",
			mutate: func(c *Config) {
				c.RateLimiting.Command.Burst = 0
			},
		},
		{
			name: "typing ttl must be > 0",
			mutate: func(c *Config) {
				c.Typing.TTL = 0
			},
		},
		{
			name: "jwt secret must not be empty",
			mutate: func(c *Config) {
				c.Auth.JWTSecret = ""
			},
		},
		{
			name: "redis address required when enabled",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Address = ""
			},
		},
		{
			name: "bootstrap default channel must not be empty",
			mutate: func(c *Config) {
				c.Bootstrap.DefaultChannel = ""
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			// ensure other timing fields are valid to isolate the mutated one
			cfg.Server.ReadTimeout = time.Second
			cfg.Server.WriteTimeout = time.Second
			tc.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("expected defaults when file missing, got error: %v", err)
	}
	if cfg.IRC.Address != ":6667" {
		t.Errorf("expected default IRC address :6667, got %s", cfg.IRC.Address)
	}
	if cfg.Typing.TTL != 8*time.Second {
		t.Errorf("expected default typing ttl 8s, got %v", cfg.Typing.TTL)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("irc:\n  address: \":7000\"\nlimits:\n  max_message_length: 2000\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.IRC.Address != ":7000" {
		t.Errorf("expected IRC address :7000, got %s", cfg.IRC.Address)
	}
	if cfg.Limits.MaxMessageLength != 2000 {
		t.Errorf("expected max message length 2000, got %d", cfg.Limits.MaxMessageLength)
	}
	// untouched sections keep defaults
	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default server address, got %s", cfg.Server.Address)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PARLEY_IRC_ADDRESS", ":6697")
	t.Setenv("PARLEY_JWT_SECRET", "env-secret")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.IRC.Address != ":6697" {
		t.Errorf("expected IRC address from env, got %s", cfg.IRC.Address)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("expected jwt secret from env, got %s", cfg.Auth.JWTSecret)
	}
}
