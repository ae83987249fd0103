package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultGateURL is where a local gate listens.
const DefaultGateURL = "http://localhost:4000"

// Environment variables overriding the selected profile.
const (
	EnvGateURL     = "NSCTL_GATE_URL"
	EnvToken       = "NSCTL_TOKEN"
	EnvJWTSecret   = "NSCTL_JWT_SECRET"
	EnvDatabaseURL = "NSCTL_DATABASE_URL"
)

type Config struct {
	CurrentProfile string              `yaml:"current_profile"`
	Profiles       map[string]*Profile `yaml:"profiles"`
	path           string
}

// Profile is one gate deployment the CLI can talk to.
type Profile struct {
	GateURL     string `yaml:"gate_url"`
	Token       string `yaml:"token,omitempty"`
	JWTSecret   string `yaml:"jwt_secret,omitempty"`
	DatabaseURL string `yaml:"database_url,omitempty"`
}

func Default() *Config {
	return &Config{
		CurrentProfile: "default",
		Profiles:       make(map[string]*Profile),
	}
}

// DefaultPath is ~/.nsctl/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".nsctl", "config.yaml"), nil
}

func Load(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		cfgFile = p
	}

	cfg := Default()
	cfg.path = cfgFile

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", cfgFile, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}

	return cfg, nil
}

func (c *Config) Save() error {
	if c.path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		c.path = p
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0600)
}

// Resolve returns the named profile (the current one when name is empty)
// with environment overrides applied. A missing profile resolves to defaults.
func (c *Config) Resolve(name string) Profile {
	if name == "" {
		name = c.CurrentProfile
	}

	var p Profile
	if stored, ok := c.Profiles[name]; ok && stored != nil {
		p = *stored
	}
	if p.GateURL == "" {
		p.GateURL = DefaultGateURL
	}

	if v := os.Getenv(EnvGateURL); v != "" {
		p.GateURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		p.Token = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		p.JWTSecret = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		p.DatabaseURL = v
	}
	return p
}

// SaveToken stores token on the named profile, creating it if needed.
func (c *Config) SaveToken(name, token string) error {
	if name == "" {
		name = c.CurrentProfile
	}
	if c.Profiles == nil {
		c.Profiles = make(map[string]*Profile)
	}
	p, ok := c.Profiles[name]
	if !ok || p == nil {
		p = &Profile{GateURL: DefaultGateURL}
		c.Profiles[name] = p
	}
	p.Token = token
	return c.Save()
}
