// Package config provides unified configuration for the stratum tool.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the schema store and its backends.
type Config struct {
	// DataDir is the base directory for the manifest and local payloads
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// SchemaFile is the default entity definitions file
	SchemaFile string `json:"schema_file" yaml:"schema_file"`

	// CreatedBy is recorded in snapshot metadata; defaults to $USER
	CreatedBy string `json:"created_by" yaml:"created_by"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Introspection configuration
	Introspect IntrospectConfig `json:"introspect" yaml:"introspect"`
}

// StorageConfig holds the record payload storage configuration.
type StorageConfig struct {
	// Type selects the backend: local or s3
	Type string `json:"type" yaml:"type"`

	// Path is the local backend root, defaults to <data_dir>/objects
	Path string `json:"path" yaml:"path"`

	// S3 holds the s3 backend settings
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3-specific storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// IntrospectConfig holds live database connection settings.
type IntrospectConfig struct {
	// Driver selects the engine: sqlite or postgres
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the connection string (file path for sqlite)
	DSN string `json:"dsn" yaml:"dsn"`

	// Schema scopes postgres extraction, defaults to public
	Schema string `json:"schema" yaml:"schema"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "./data/stratum",
		SchemaFile: "schema.yaml",
		CreatedBy:  os.Getenv("USER"),
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
		Introspect: IntrospectConfig{
			Driver: "sqlite",
			Schema: "public",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/stratum"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "objects")
	}
}

// ManifestPath returns the path to the manifest database.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir, "manifest.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	switch c.Storage.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3 storage requires a bucket")
	}

	switch c.Introspect.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid introspect driver: %s (must be sqlite or postgres)", c.Introspect.Driver)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the STRATUM_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STRATUM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STRATUM_SCHEMA_FILE"); v != "" {
		cfg.SchemaFile = v
	}
	if v := os.Getenv("STRATUM_CREATED_BY"); v != "" {
		cfg.CreatedBy = v
	}

	// Storage configuration
	if v := os.Getenv("STRATUM_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("STRATUM_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("STRATUM_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("STRATUM_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("STRATUM_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// Introspection configuration
	if v := os.Getenv("STRATUM_DB_DRIVER"); v != "" {
		cfg.Introspect.Driver = v
	}
	if v := os.Getenv("STRATUM_DB_DSN"); v != "" {
		cfg.Introspect.DSN = v
	}
	if v := os.Getenv("STRATUM_DB_SCHEMA"); v != "" {
		cfg.Introspect.Schema = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
