package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Retention RetentionConfig `mapstructure:"retention"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig is the metrics and health listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type QueueConfig struct {
	Key string `mapstructure:"key"`
}

type DatabaseConfig struct {
	URL     string `mapstructure:"url"`
	Migrate bool   `mapstructure:"migrate"`
}

type WorkerConfig struct {
	// PopTimeout bounds each blocking pop; 0 blocks until a message arrives.
	PopTimeout time.Duration `mapstructure:"pop_timeout"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Days     int           `mapstructure:"days"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MaxAge is how old an alert may get before retention deletes it.
func (r RetentionConfig) MaxAge() time.Duration {
	return time.Duration(r.Days) * 24 * time.Hour
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 4001)
	v.SetDefault("redis.url", "redis://127.0.0.1:6379/0")
	v.SetDefault("queue.key", "events")
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrate", true)
	v.SetDefault("worker.pop_timeout", "0s")
	v.SetDefault("worker.backoff", "1s")
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.interval", "24h")
	v.SetDefault("retention.days", 30)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/netsentry/worker")
	}

	v.SetEnvPrefix("WORKER")
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

func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if c.Worker.PopTimeout < 0 {
		return fmt.Errorf("worker.pop_timeout must not be negative")
	}
	if c.Worker.Backoff <= 0 {
		return fmt.Errorf("worker.backoff must be positive")
	}
	if c.Retention.Enabled {
		if c.Retention.Days <= 0 {
			return fmt.Errorf("retention.days must be positive")
		}
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("retention.interval must be positive")
		}
	}
	return nil
}
