// Package config loads the persistence layer configuration from a YAML
// file, applies defaults, and honors a small set of environment variable
// overrides used in containerized deployments.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the full persistence configuration.
type Config struct {
	Mongo   Mongo   `yaml:"mongo"`
	Redis   Redis   `yaml:"redis"`
	Storage Storage `yaml:"storage"`
}

// Mongo configures the document store connection.
type Mongo struct {
	ConnectionString string `yaml:"connection_string"`
	Database         string `yaml:"database"`
	// PasswordSecretArn, when set, points at an AWS Secrets Manager
	// secret holding the password; it is resolved at startup and
	// injected into the connection credentials.
	PasswordSecretArn string `yaml:"password_secret_arn"`
}

// Redis configures the optional read-through document cache. An empty
// address disables it.
type Redis struct {
	Address    string `yaml:"address"`
	TTLSeconds int    `yaml:"ttl"`
}

// Storage configures the binary object store.
type Storage struct {
	// ObjectStorage selects the S3-compatible backend over the local
	// filesystem backend. The choice is made once at startup.
	ObjectStorage bool `yaml:"object_storage"`
	// Workdir is the base directory of the local backend.
	Workdir string `yaml:"workdir"`
	// BasePath prefixes all object keys in multi-cell deployments.
	BasePath string            `yaml:"base_path"`
	Buckets  map[string]string `yaml:"buckets"`
	S3       S3                `yaml:"s3"`
}

// S3 holds object storage connection settings.
type S3 struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LoadConfig loads the configuration from a YAML file, applies defaults
// and environment overrides.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(&config)
	applyEnvOverrides(&config)
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Mongo.ConnectionString == "" {
		config.Mongo.ConnectionString = "mongodb://localhost:27017"
	}
	if config.Mongo.Database == "" {
		config.Mongo.Database = "geti"
	}
	if config.Redis.TTLSeconds == 0 {
		config.Redis.TTLSeconds = 3600
	}
	if config.Storage.Workdir == "" {
		config.Storage.Workdir = "/data"
	}
	if config.Storage.S3.Region == "" {
		config.Storage.S3.Region = "us-west-2"
	}
	if config.Storage.Buckets == nil {
		config.Storage.Buckets = map[string]string{}
	}
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("MONGODB_CONNECTION_STRING"); v != "" {
		config.Mongo.ConnectionString = v
	}
	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		config.Mongo.Database = v
	}
	if v := os.Getenv("S3_HOST"); v != "" {
		config.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		config.Storage.S3.AccessKeyID = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		config.Storage.S3.SecretAccessKey = v
	}
	if v := os.Getenv("OBJECT_STORAGE_BASE_PATH"); v != "" {
		config.Storage.BasePath = v
	}
}
