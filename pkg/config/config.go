// Package config holds the file-backed runtime configuration and the
// logger factory shared by the CLI and the service façade.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Zero values are filled from
// the default tags, so an absent file still yields a working setup.
type Config struct {
	// Adapter is the Bluetooth adapter name, Linux only.
	Adapter string `yaml:"adapter" default:"hci0"`

	Log     LogConfig     `yaml:"log"`
	Scan    ScanConfig    `yaml:"scan"`
	Link    LinkConfig    `yaml:"link"`
	Payment PaymentConfig `yaml:"payment"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	// Level is a logrus level name. The CLI default stays quiet; commands
	// raise it via flags.
	Level string `yaml:"level" default:"panic"`
}

// ScanConfig controls the discovery window.
type ScanConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"10s"`

	// Name restricts scans to peripherals advertising this local name.
	Name string `yaml:"name"`
}

// LinkConfig selects the peripheral endpoint. Empty UUIDs mean the
// firmware defaults built into the façade.
type LinkConfig struct {
	Service        string `yaml:"service"`
	Characteristic string `yaml:"characteristic"`
	MTU            int    `yaml:"mtu" default:"512"`
}

// PaymentConfig carries the terminal endpoint and credentials. All three
// credential fields must be present for payment operations to run.
type PaymentConfig struct {
	Endpoint   string `yaml:"endpoint"`
	ClientID   string `yaml:"client_id"`
	ClientName string `yaml:"client_name"`
	APIKey     string `yaml:"api_key"`

	// LogFile is the transaction log path. Empty disables the log.
	LogFile string `yaml:"log_file"`
}

// Default returns a configuration with every default tag applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file over the defaults. A missing file
// is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the rest of the system would choke on later.
func (c *Config) Validate() error {
	if c.Scan.Timeout <= 0 {
		return fmt.Errorf("scan timeout must be positive, got %s", c.Scan.Timeout)
	}
	if c.Log.Level != "" {
		if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("invalid log level %q", c.Log.Level)
		}
	}
	return nil
}

// HasCredentials reports whether the payment credential triple is complete.
func (p *PaymentConfig) HasCredentials() bool {
	return p.ClientID != "" && p.ClientName != "" && p.APIKey != ""
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.PanicLevel
	}
	logger.SetLevel(level)
	return logger
}
