package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models scansweep.yml, the optional defaults file. Credentials may be
// stored here but flags and environment variables take precedence.
type Config struct {
	API struct {
		URL   string `yaml:"url"`
		User  string `yaml:"user"`
		Token string `yaml:"token"`
	} `yaml:"api"`
	Defaults struct {
		Days          int    `yaml:"days"`
		PlanFile      string `yaml:"plan_file"`
		CheckInterval int    `yaml:"check_interval"`
		MaxWaitMins   int    `yaml:"max_wait_minutes"`
		Workers       int    `yaml:"workers"`
		OutputDir     string `yaml:"output_dir"`
	} `yaml:"defaults"`
}

// Credentials is the resolved set of API credentials, validated for presence
// before any network call is made.
type Credentials struct {
	URL   string
	User  string
	Token string
}

// Validate ensures every credential is present.
func (c Credentials) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("API URL is required; pass --api-url or set WORKBENCH_URL")
	}
	if c.User == "" {
		return fmt.Errorf("API user is required; pass --api-user or set WORKBENCH_USER")
	}
	if c.Token == "" {
		return fmt.Errorf("API token is required; pass --api-token or set WORKBENCH_TOKEN")
	}
	return nil
}

// Validate checks the defaults for obviously bad values.
func (c *Config) Validate() error {
	if c.Defaults.Days < 0 {
		return fmt.Errorf("defaults.days must not be negative")
	}
	if c.Defaults.CheckInterval < 0 {
		return fmt.Errorf("defaults.check_interval must not be negative")
	}
	if c.Defaults.Workers < 0 {
		return fmt.Errorf("defaults.workers must not be negative")
	}
	return nil
}

// Default returns the built-in defaults, matching the original toolkit's
// constants.
func Default() *Config {
	var cfg Config
	cfg.Defaults.Days = 365
	cfg.Defaults.PlanFile = "archive_plan.json"
	cfg.Defaults.CheckInterval = 30
	cfg.Defaults.MaxWaitMins = 60
	cfg.Defaults.Workers = 15
	return &cfg
}

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "scansweep.yml")
}

// LoadOptional returns the built-in defaults when no config file exists.
func LoadOptional(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Unset defaults
// fall back to the built-in values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Defaults.Days == 0 {
		cfg.Defaults.Days = 365
	}
	if cfg.Defaults.CheckInterval == 0 {
		cfg.Defaults.CheckInterval = 30
	}
	if cfg.Defaults.Workers == 0 {
		cfg.Defaults.Workers = 15
	}
	if cfg.Defaults.PlanFile == "" {
		cfg.Defaults.PlanFile = "archive_plan.json"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
