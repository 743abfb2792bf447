// Package config loads and validates kernel configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Sentinel errors for configuration problems
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid config")
)

// KernelConfig holds the settings for the transaction kernel
type KernelConfig struct {
	// LogLevel controls logger verbosity: debug, info, warn, error
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	Broker BrokerConfig `yaml:"broker"`
	Events EventsConfig `yaml:"events"`
	Index  IndexConfig  `yaml:"index"`

	// Postgres holds the optional relational source settings. When the
	// DSN is empty the kernel runs on the in-memory source.
	Postgres PostgresConfig `yaml:"postgres"`
}

// BrokerConfig tunes the connection broker
type BrokerConfig struct {
	// Stripes is the number of independently locked shards. More stripes
	// reduce contention between concurrent transactions.
	Stripes int `yaml:"stripes" validate:"min=1,max=1024"`
}

// EventsConfig tunes the event bus
type EventsConfig struct {
	// BufferSize is the per-subscriber channel depth
	BufferSize int `yaml:"buffer_size" validate:"min=1"`
}

// IndexConfig locates the property-key index store
type IndexConfig struct {
	// StorePath is the index record file. Empty keeps the registry
	// purely in memory.
	StorePath string `yaml:"store_path"`
}

// PostgresConfig holds relational source settings
type PostgresConfig struct {
	DSN        string `yaml:"dsn"`
	SourceName string `yaml:"source_name" validate:"omitempty,min=1,max=100"`
}

// DefaultConfig returns a safe default configuration
func DefaultConfig() KernelConfig {
	return KernelConfig{
		LogLevel: "info",
		Broker: BrokerConfig{
			Stripes: 16,
		},
		Events: EventsConfig{
			BufferSize: 64,
		},
		Postgres: PostgresConfig{
			SourceName: "postgres",
		},
	}
}

// Load reads a YAML config file and merges it over the defaults
func Load(path string) (KernelConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %w", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration against its constraints
func (c *KernelConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("%w: field %s failed %s constraint", ErrInvalidConfig, first.Field(), first.Tag())
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
