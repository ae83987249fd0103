package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Auth modes.
const (
	AuthModeToken = "token"
	AuthModeMTLS  = "mtls"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Hub       HubConfig       `mapstructure:"hub"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Rules     RulesConfig     `mapstructure:"rules"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLSCert      string        `mapstructure:"tls_cert"`
	TLSKey       string        `mapstructure:"tls_key"`
	TLSCA        string        `mapstructure:"tls_ca"`
	// TrustedProxies are CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty trusts nobody.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type AuthConfig struct {
	Mode      string `mapstructure:"mode"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type QueueConfig struct {
	Key           string        `mapstructure:"key"`
	PushTimeout   time.Duration `mapstructure:"push_timeout"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
	BufferMax     int           `mapstructure:"buffer_max"`
}

type HubConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	NATSURL           string        `mapstructure:"nats_url"`
	NATSSubject       string        `mapstructure:"nats_subject"`
}

type RateLimitConfig struct {
	// Backend is "memory" or "redis".
	Backend   string        `mapstructure:"backend"`
	AgentMax  int           `mapstructure:"agent_max"`
	GlobalMax int           `mapstructure:"global_max"`
	Window    time.Duration `mapstructure:"window"`
	MaxKeys   int           `mapstructure:"max_keys"`
}

type RulesConfig struct {
	File string `mapstructure:"file"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 4000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.tls_ca", "")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("auth.mode", AuthModeToken)
	v.SetDefault("auth.jwt_secret", "dev-secret")
	v.SetDefault("redis.url", "redis://127.0.0.1:6379/0")
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", true)
	v.SetDefault("queue.key", "events")
	v.SetDefault("queue.push_timeout", "2s")
	v.SetDefault("queue.flush_interval", "5s")
	v.SetDefault("queue.batch_size", 100)
	v.SetDefault("queue.buffer_max", 0)
	v.SetDefault("hub.heartbeat_interval", "10s")
	v.SetDefault("hub.nats_url", "")
	v.SetDefault("hub.nats_subject", "netsentry.broadcast")
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.agent_max", 200)
	v.SetDefault("rate_limit.global_max", 100)
	v.SetDefault("rate_limit.window", "1s")
	v.SetDefault("rate_limit.max_keys", 10000)
	v.SetDefault("rules.file", "signatures/signatures.json")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/netsentry/ingest")
	}

	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the gate cannot run with.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case AuthModeToken:
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required in token mode")
		}
	case AuthModeMTLS:
		if c.Server.TLSCA == "" {
			return fmt.Errorf("server.tls_ca is required in mtls mode")
		}
	default:
		return fmt.Errorf("unknown auth.mode %q", c.Auth.Mode)
	}
	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive")
	}
	if c.Queue.BufferMax < 0 {
		return fmt.Errorf("queue.buffer_max must not be negative")
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend)
	}
	return nil
}
