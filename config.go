package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/docopt/docopt-go"
	"gopkg.in/yaml.v3"
)

// Config holds the settings of a run. Values come from, in increasing
// priority: the config file, PROVCHECK_* environment variables, flags.
type Config struct {
	Format      string   `yaml:"format"`
	WarnDays    int      `yaml:"warn_days"`
	Identities  string   `yaml:"identities"`
	Password    string   `yaml:"password"`
	Keychain    string   `yaml:"keychain"`
	OpenSSL     bool     `yaml:"openssl"`
	ProfileDirs []string `yaml:"profile_dirs"`

	Quiet   bool     `yaml:"-"`
	Delete  bool     `yaml:"-"`
	NoColor bool     `yaml:"-"`
	Verbose bool     `yaml:"-"`
	Paths   []string `yaml:"-"`
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "go-provcheck", "config.yaml")
}

// loadConfigFile reads path. A missing file is only an error when the path
// was given explicitly.
func loadConfigFile(path string, explicit bool) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.WarnDays < 0 {
		return nil, fmt.Errorf("config file %s: warn_days must not be negative", path)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PROVCHECK_FORMAT"); v != "" {
		c.Format = v
	}
	if v := getenv("PROVCHECK_WARN"); v != "" {
		days, err := parseWarnDays(v)
		if err != nil {
			return fmt.Errorf("PROVCHECK_WARN: %w", err)
		}
		c.WarnDays = days
	}
	if v := getenv("PROVCHECK_IDENTITIES"); v != "" {
		c.Identities = v
	}
	if v := getenv("PROVCHECK_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := getenv("PROVCHECK_KEYCHAIN"); v != "" {
		c.Keychain = v
	}
	return nil
}

func (c *Config) applyFlags(opts docopt.Opts) error {
	if v, _ := opts.String("--format"); v != "" {
		c.Format = v
	}
	if v, _ := opts.String("--warnExpiration"); v != "" {
		days, err := parseWarnDays(v)
		if err != nil {
			return fmt.Errorf("--warnExpiration: %w", err)
		}
		c.WarnDays = days
	}
	if v, _ := opts.String("--identities"); v != "" {
		c.Identities = v
	}
	if v, _ := opts.String("--password"); v != "" {
		c.Password = v
	}
	if v, _ := opts.String("--keychain"); v != "" {
		c.Keychain = v
	}
	if v, _ := opts.Bool("--openssl"); v {
		c.OpenSSL = true
	}
	c.Quiet, _ = opts.Bool("--quiet")
	c.Delete, _ = opts.Bool("--delete")
	c.NoColor, _ = opts.Bool("--no-color")
	c.Verbose, _ = opts.Bool("--verbose")
	if paths, ok := opts["<path>"].([]string); ok {
		c.Paths = paths
	}
	return nil
}

func parseWarnDays(v string) (int, error) {
	days, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid number of days %q", v)
	}
	if days < 0 {
		return 0, fmt.Errorf("number of days must not be negative")
	}
	return days, nil
}

// loadConfig merges the config file, environment and parsed flags.
func loadConfig(opts docopt.Opts, getenv func(string) string) (*Config, error) {
	path, _ := opts.String("--config")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	cfg, err := loadConfigFile(path, explicit)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.applyFlags(opts); err != nil {
		return nil, err
	}
	return cfg, nil
}
