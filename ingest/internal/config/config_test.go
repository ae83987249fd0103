package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, AuthModeToken, cfg.Auth.Mode)
	assert.Equal(t, "events", cfg.Queue.Key)
	assert.Equal(t, 2*time.Second, cfg.Queue.PushTimeout)
	assert.Equal(t, 5*time.Second, cfg.Queue.FlushInterval)
	assert.Equal(t, 100, cfg.Queue.BatchSize)
	assert.Equal(t, 0, cfg.Queue.BufferMax)
	assert.Equal(t, 10*time.Second, cfg.Hub.HeartbeatInterval)
	assert.Equal(t, "netsentry.broadcast", cfg.Hub.NATSSubject)
	assert.Equal(t, 200, cfg.RateLimit.AgentMax)
	assert.Equal(t, 100, cfg.RateLimit.GlobalMax)
	assert.Equal(t, time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_WithConfigFile(t *testing.T) {
	content := `
server:
  port: 9443
auth:
  mode: token
  jwt_secret: s3cret
queue:
  batch_size: 50
  buffer_max: 1000
  flush_interval: 1s
hub:
  nats_url: nats://localhost:4222
logging:
  level: debug
  format: text
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 50, cfg.Queue.BatchSize)
	assert.Equal(t, 1000, cfg.Queue.BufferMax)
	assert.Equal(t, time.Second, cfg.Queue.FlushInterval)
	assert.Equal(t, "nats://localhost:4222", cfg.Hub.NATSURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "events", cfg.Queue.Key)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("INGEST_SERVER_PORT", "5000")
	t.Setenv("INGEST_QUEUE_KEY", "telemetry")
	t.Setenv("INGEST_RATE_LIMIT_AGENT_MAX", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "telemetry", cfg.Queue.Key)
	assert.Equal(t, 5, cfg.RateLimit.AgentMax)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Auth:      AuthConfig{Mode: AuthModeToken, JWTSecret: "x"},
			Queue:     QueueConfig{BatchSize: 100},
			RateLimit: RateLimitConfig{Backend: "memory"},
		}
	}

	cfg := base()
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Auth.Mode = "basic"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Auth.Mode = AuthModeMTLS
	assert.Error(t, cfg.Validate())
	cfg.Server.TLSCA = "/etc/ca.pem"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Queue.BatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Queue.BufferMax = -1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.RateLimit.Backend = "memcached"
	assert.Error(t, cfg.Validate())
}
