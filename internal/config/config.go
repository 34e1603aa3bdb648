// Copyright 2025 Helmsman Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides service configuration loaded from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Defaults for the repository configuration.
const (
	// DefaultChunkSize is the number of execution ids handed to one
	// query worker at a time.
	DefaultChunkSize = 75

	// DefaultQueryAllWorkers bounds fan-out for whole-table scans.
	DefaultQueryAllWorkers = 10

	// DefaultQueryByAppWorkers bounds fan-out for application- and
	// pipeline-scoped queries.
	DefaultQueryByAppWorkers = 50

	// DefaultContextMergeRetries caps the optimistic retry loop when
	// merging execution context under contention.
	DefaultContextMergeRetries = 10
)

// Config is the root service configuration.
type Config struct {
	Redis      RedisConfig      `yaml:"redis"`
	Repository RepositoryConfig `yaml:"repository"`
	Log        LogConfig        `yaml:"log"`
}

// RedisConfig configures the execution store backends.
type RedisConfig struct {
	// Address is the primary backend ("host:port").
	Address string `yaml:"address"`

	// PreviousAddress optionally points at the backend being migrated
	// away from. Empty disables the previous backend.
	PreviousAddress string `yaml:"previous_address"`

	// DB selects the Redis logical database.
	DB int `yaml:"db"`

	// Password authenticates against the backend when set.
	Password string `yaml:"password"`
}

// RepositoryConfig tunes the execution repository.
type RepositoryConfig struct {
	// ChunkSize is the streaming query chunk size.
	ChunkSize int `yaml:"chunk_size"`

	// QueryAllWorkers bounds concurrent decode work for whole-table scans.
	QueryAllWorkers int `yaml:"query_all_workers"`

	// QueryByAppWorkers bounds concurrent decode work for scoped queries.
	QueryByAppWorkers int `yaml:"query_by_app_workers"`

	// ContextMergeRetries caps StoreExecutionContext retry attempts.
	ContextMergeRetries int `yaml:"context_merge_retries"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Repository: RepositoryConfig{
			ChunkSize:           DefaultChunkSize,
			QueryAllWorkers:     DefaultQueryAllWorkers,
			QueryByAppWorkers:   DefaultQueryByAppWorkers,
			ContextMergeRetries: DefaultContextMergeRetries,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from the given path, falling back to defaults
// for unset values, then applies environment overrides. An empty path
// returns defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() {
	if v := os.Getenv("HELMSMAN_REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("HELMSMAN_REDIS_PREVIOUS_ADDRESS"); v != "" {
		c.Redis.PreviousAddress = v
	}
	if v := os.Getenv("HELMSMAN_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("HELMSMAN_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Repository.ChunkSize = n
		}
	}
	if v := os.Getenv("HELMSMAN_QUERY_BY_APP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Repository.QueryByAppWorkers = n
		}
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required")
	}
	if c.Repository.ChunkSize <= 0 {
		return fmt.Errorf("repository.chunk_size must be positive, got %d", c.Repository.ChunkSize)
	}
	if c.Repository.QueryAllWorkers <= 0 {
		return fmt.Errorf("repository.query_all_workers must be positive, got %d", c.Repository.QueryAllWorkers)
	}
	if c.Repository.QueryByAppWorkers <= 0 {
		return fmt.Errorf("repository.query_by_app_workers must be positive, got %d", c.Repository.QueryByAppWorkers)
	}
	return nil
}
