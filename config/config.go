// Package config loads stonebox environment defaults from a YAML file. It
// is consumed by the CLI; library users construct sandbox.Config directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"stonebox/sandbox"
)

// Config mirrors sandbox.Config in YAML-friendly form.
type Config struct {
	Language     string                  `yaml:"language"`
	Backend      string                  `yaml:"backend"`
	Timeout      time.Duration           `yaml:"timeout"`
	MemoryMB     int64                   `yaml:"memory_mb"`
	ProcessLimit int64                   `yaml:"process_limit"`
	Env          map[string]string       `yaml:"env"`
	Engine       sandbox.EngineOptions   `yaml:"engine"`
	Policy       *sandbox.SecurityPolicy `yaml:"policy"`
}

// DefaultConfig returns the defaults applied under a loaded file.
func DefaultConfig() *Config {
	return &Config{
		Language: string(sandbox.LangPython),
		Backend:  string(sandbox.BackendProcess),
		Timeout:  10 * time.Second,
	}
}

// Load reads configuration from a YAML file, layered over DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from a CLI flag
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the cheap structural properties; sandbox.NewEnvironment
// performs the authoritative validation.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MemoryMB < 0 {
		return fmt.Errorf("memory_mb must be positive, got %d", c.MemoryMB)
	}
	if c.ProcessLimit < 0 {
		return fmt.Errorf("process_limit must be positive, got %d", c.ProcessLimit)
	}
	if c.Backend == string(sandbox.BackendContainer) && (c.Policy == nil || c.Policy.Image == "") {
		return fmt.Errorf("container backend requires policy.image")
	}
	return nil
}

// Sandbox converts the file form into the library's Config.
func (c *Config) Sandbox() sandbox.Config {
	return sandbox.Config{
		Language:     sandbox.Language(c.Language),
		Backend:      sandbox.Backend(c.Backend),
		Timeout:      c.Timeout,
		MemoryMB:     c.MemoryMB,
		ProcessLimit: c.ProcessLimit,
		Env:          c.Env,
		Engine:       c.Engine,
		Policy:       c.Policy,
	}
}
