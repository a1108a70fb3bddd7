package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	IRC struct {
		Address             string        `yaml:"address"`
		ServerName          string        `yaml:"server_name"`
		MOTD                []string      `yaml:"motd"`
		IdleTimeout         time.Duration `yaml:"idle_timeout"`
		RegistrationTimeout time.Duration `yaml:"registration_timeout"`
		TLS                 struct {
			Enabled          bool          `yaml:"enabled"`
			CertFile         string        `yaml:"cert_file"`
			KeyFile          string        `yaml:"key_file"`
			HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
		} `yaml:"tls"`
	} `yaml:"irc"`

	Realtime struct {
		PingInterval  time.Duration `yaml:"ping_interval"`
		PongTimeout   time.Duration `yaml:"pong_timeout"`
		SendQueueSize int           `yaml:"send_queue_size"`
		MaxFrameBytes int64         `yaml:"max_frame_bytes"`
	} `yaml:"realtime"`

	Limits struct {
		MaxMessageLength int `yaml:"max_message_length"`
		HistoryPageSize  int `yaml:"history_page_size"`
		HistoryPageMax   int `yaml:"history_page_max"`
	} `yaml:"limits"`

	RateLimiting struct {
		Enabled               bool `yaml:"enabled"`
		ConnectionsPerAddress int  `yaml:"connections_per_address"`

		Command struct {
			Burst       int           `yaml:"burst"`
			RefillEvery time.Duration `yaml:"refill_every"`
		} `yaml:"command"`

		HTTP struct {
			Auth struct {
				Burst       int           `yaml:"burst"`
				RefillEvery time.Duration `yaml:"refill_every"`
			} `yaml:"auth"`
			API struct {
				Burst       int           `yaml:"burst"`
				RefillEvery time.Duration `yaml:"refill_every"`
			} `yaml:"api"`
			WS struct {
				Burst       int           `yaml:"burst"`
				RefillEvery time.Duration `yaml:"refill_every"`
			} `yaml:"ws"`
		} `yaml:"http"`
	} `yaml:"rate_limiting"`

	Typing struct {
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"typing"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
		Environment string  `yaml:"environment"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Backup struct {
		Enabled       bool          `yaml:"enabled"`
		Dir           string        `yaml:"dir"`
		Interval      time.Duration `yaml:"interval"`
		RetentionDays int           `yaml:"retention_days"`
	} `yaml:"backup"`

	Bootstrap struct {
		Admins         []string `yaml:"admins"`
		ServerName     string   `yaml:"server_name"`
		DefaultChannel string   `yaml:"default_channel"`
	} `yaml:"bootstrap"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// IRC
	if c.IRC.Address == "" {
		return fmt.Errorf("irc.address must not be empty")
	}
	if c.IRC.ServerName == "" {
		return fmt.Errorf("irc.server_name must not be empty")
	}
	if c.IRC.IdleTimeout <= 0 {
		return fmt.Errorf("irc.idle_timeout must be > 0")
	}
	if c.IRC.RegistrationTimeout <= 0 {
		return fmt.Errorf("irc.registration_timeout must be > 0")
	}
	if c.IRC.TLS.Enabled {
		if c.IRC.TLS.CertFile == "" || c.IRC.TLS.KeyFile == "" {
			return fmt.Errorf("irc.tls.cert_file and key_file must be set when irc.tls.enabled=true")
		}
		if c.IRC.TLS.HandshakeTimeout <= 0 {
			return fmt.Errorf("irc.tls.handshake_timeout must be > 0 when irc.tls.enabled=true")
		}
	}

	// Realtime
	if c.Realtime.PingInterval <= 0 {
		return fmt.Errorf("realtime.ping_interval must be > 0")
	}
	if c.Realtime.PongTimeout <= c.Realtime.PingInterval {
		return fmt.Errorf("realtime.pong_timeout must be > realtime.ping_interval")
	}
	if c.Realtime.SendQueueSize <= 0 {
		return fmt.Errorf("realtime.send_queue_size must be > 0")
	}
	if c.Realtime.MaxFrameBytes <= 0 {
		return fmt.Errorf("realtime.max_frame_bytes must be > 0")
	}

	// Limits
	if c.Limits.MaxMessageLength <= 0 {
		return fmt.Errorf("limits.max_message_length must be > 0")
	}
	if c.Limits.HistoryPageSize <= 0 {
		return fmt.Errorf("limits.history_page_size must be > 0")
	}
	if c.Limits.HistoryPageMax < c.Limits.HistoryPageSize {
		return fmt.Errorf("limits.history_page_max must be >= limits.history_page_size")
	}

	// Rate limiting
	if c.RateLimiting.ConnectionsPerAddress <= 0 {
		return fmt.Errorf("rate_limiting.connections_per_address must be > 0")
	}
	if c.RateLimiting.Enabled {
		if c.RateLimiting.Command.Burst <= 0 {
			return fmt.Errorf("rate_limiting.command.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Command.RefillEvery <= 0 {
			return fmt.Errorf("rate_limiting.command.refill_every must be > 0 when rate limiting is enabled")
		}
	}

	// Typing
	if c.Typing.TTL <= 0 {
		return fmt.Errorf("typing.ttl must be > 0")
	}
	if c.Typing.SweepInterval <= 0 {
		return fmt.Errorf("typing.sweep_interval must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	// Backup
	if c.Backup.Enabled {
		if c.Backup.Dir == "" {
			return fmt.Errorf("backup.dir must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.RetentionDays <= 0 {
			return fmt.Errorf("backup.retention_days must be > 0 when backup.enabled=true")
		}
	}

	// Bootstrap
	if c.Bootstrap.ServerName == "" {
		return fmt.Errorf("bootstrap.server_name must not be empty")
	}
	if c.Bootstrap.DefaultChannel == "" {
		return fmt.Errorf("bootstrap.default_channel must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
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

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.IRC.Address = ":6667"
	cfg.IRC.ServerName = "parley"
	cfg.IRC.IdleTimeout = 300 * time.Second
	cfg.IRC.RegistrationTimeout = 60 * time.Second
	cfg.IRC.TLS.HandshakeTimeout = 10 * time.Second

	cfg.Realtime.PingInterval = 54 * time.Second
	cfg.Realtime.PongTimeout = 60 * time.Second
	cfg.Realtime.SendQueueSize = 256
	cfg.Realtime.MaxFrameBytes = 64 * 1024

	cfg.Limits.MaxMessageLength = 4000
	cfg.Limits.HistoryPageSize = 50
	cfg.Limits.HistoryPageMax = 100

	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.ConnectionsPerAddress = 5
	cfg.RateLimiting.Command.Burst = 10
	cfg.RateLimiting.Command.RefillEvery = 500 * time.Millisecond
	cfg.RateLimiting.HTTP.Auth.Burst = 10
	cfg.RateLimiting.HTTP.Auth.RefillEvery = 6 * time.Second
	cfg.RateLimiting.HTTP.API.Burst = 60
	cfg.RateLimiting.HTTP.API.RefillEvery = time.Second
	cfg.RateLimiting.HTTP.WS.Burst = 5
	cfg.RateLimiting.HTTP.WS.RefillEvery = 12 * time.Second

	cfg.Typing.TTL = 8 * time.Second
	cfg.Typing.SweepInterval = time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0
	cfg.Tracing.Environment = "development"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 24 * time.Hour
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Backup.Enabled = false
	cfg.Backup.Dir = "backups"
	cfg.Backup.Interval = time.Hour
	cfg.Backup.RetentionDays = 7

	cfg.Bootstrap.ServerName = "parley"
	cfg.Bootstrap.DefaultChannel = "general"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	// Apply environment variable overrides
	if addr := os.Getenv("PARLEY_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("PARLEY_IRC_ADDRESS"); addr != "" {
		c.IRC.Address = addr
	}
	if level := os.Getenv("PARLEY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("PARLEY_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("PARLEY_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
}
