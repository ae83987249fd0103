package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.NotNil(t, cfg.Profiles)
	assert.Empty(t, cfg.Profiles)
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.Equal(t, DefaultGateURL, cfg.Resolve("").GateURL)
}

func TestLoad_WithConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `current_profile: lab
profiles:
  lab:
    gate_url: https://gate.lab.example.com
    token: agent-token
    jwt_secret: lab-secret
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	p := cfg.Resolve("")
	assert.Equal(t, "https://gate.lab.example.com", p.GateURL)
	assert.Equal(t, "agent-token", p.Token)
	assert.Equal(t, "lab-secret", p.JWTSecret)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("profiles: [unclosed"), 0600))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestResolve_EnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvGateURL, "http://env-gate:4000")
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvDatabaseURL, "postgres://env/db")

	cfg := Default()
	cfg.Profiles["default"] = &Profile{GateURL: "http://file-gate:4000", Token: "file-token"}

	p := cfg.Resolve("")
	assert.Equal(t, "http://env-gate:4000", p.GateURL)
	assert.Equal(t, "env-token", p.Token)
	assert.Equal(t, "postgres://env/db", p.DatabaseURL)

	assert.Equal(t, "http://file-gate:4000", cfg.Profiles["default"].GateURL)
}

func TestResolve_UnknownProfileUsesDefaults(t *testing.T) {
	cfg := Default()
	p := cfg.Resolve("missing")
	assert.Equal(t, DefaultGateURL, p.GateURL)
	assert.Empty(t, p.Token)
}

func TestSaveToken(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := Load(configPath)
	require.NoError(t, err)

	require.NoError(t, cfg.SaveToken("", "minted"))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "minted", reloaded.Resolve("").Token)
	assert.Equal(t, DefaultGateURL, reloaded.Profiles["default"].GateURL)
}
