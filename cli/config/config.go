// Package config provides configuration management for the sagakit CLI.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the sagakit CLI configuration
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	// Project configuration
	Project ProjectConfig `yaml:"project"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Stores configuration
	Stores StoresConfig `yaml:"stores"`

	// Delivery configuration
	Delivery DeliveryConfig `yaml:"delivery"`
}

// ProjectConfig contains project-level settings
type ProjectConfig struct {
	// Name of the project
	Name string `yaml:"name"`

	// Module is the Go module path
	Module string `yaml:"module"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	// Driver is the database driver (postgres, memory)
	Driver string `yaml:"driver"`

	// URL is the database connection string
	URL string `yaml:"url,omitempty"`

	// Schema is the database schema to use
	Schema string `yaml:"schema"`
}

// StoresConfig contains table names for the persistent stores
type StoresConfig struct {
	// SagaTable holds saga state records
	SagaTable string `yaml:"saga_table"`

	// TimeoutTable holds scheduled timeouts
	TimeoutTable string `yaml:"timeout_table"`
}

// DeliveryConfig contains timeout delivery settings
type DeliveryConfig struct {
	// PollInterval between delivery cycles
	PollInterval time.Duration `yaml:"poll_interval"`

	// BatchSize caps timeouts delivered per cycle
	BatchSize int `yaml:"batch_size"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Project: ProjectConfig{
			Name:   "my-sagakit-app",
			Module: "github.com/user/my-sagakit-app",
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			URL:    "${DATABASE_URL}",
			Schema: "public",
		},
		Stores: StoresConfig{
			SagaTable:    "sagakit_sagas",
			TimeoutTable: "sagakit_timeouts",
		},
		Delivery: DeliveryConfig{
			PollInterval: time.Second,
			BatchSize:    100,
		},
	}
}

// ConfigFileName is the default config file name
const ConfigFileName = "sagakit.yaml"

// Load loads configuration from the specified directory
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, ConfigFileName)
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save saves the configuration to the specified directory
func (c *Config) Save(dir string) error {
	path := filepath.Join(dir, ConfigFileName)
	return c.SaveFile(path)
}

// SaveFile saves the configuration to a specific file path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindConfig searches for a config file starting from dir and going up
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		configPath := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := LoadFile(configPath)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

// Validate validates the configuration
func (c *Config) Validate() []string {
	var errors []string

	if c.Project.Name == "" {
		errors = append(errors, "project.name is required")
	}
	if c.Project.Module == "" {
		errors = append(errors, "project.module is required")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		errors = append(errors, "database.driver must be postgres or memory")
	}
	if c.Stores.SagaTable == "" {
		errors = append(errors, "stores.saga_table is required")
	}
	if c.Stores.TimeoutTable == "" {
		errors = append(errors, "stores.timeout_table is required")
	}
	if c.Delivery.BatchSize < 0 {
		errors = append(errors, "delivery.batch_size must not be negative")
	}

	return errors
}
