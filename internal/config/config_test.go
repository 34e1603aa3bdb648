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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Empty(t, cfg.Redis.PreviousAddress)
	assert.Equal(t, DefaultChunkSize, cfg.Repository.ChunkSize)
	assert.Equal(t, DefaultQueryAllWorkers, cfg.Repository.QueryAllWorkers)
	assert.Equal(t, DefaultQueryByAppWorkers, cfg.Repository.QueryByAppWorkers)
	assert.Equal(t, DefaultContextMergeRetries, cfg.Repository.ContextMergeRetries)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
redis:
  address: redis-primary:6379
  previous_address: redis-old:6379
repository:
  chunk_size: 100
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis-primary:6379", cfg.Redis.Address)
	assert.Equal(t, "redis-old:6379", cfg.Redis.PreviousAddress)
	assert.Equal(t, 100, cfg.Repository.ChunkSize)
	// Unset values keep their defaults.
	assert.Equal(t, DefaultQueryAllWorkers, cfg.Repository.QueryAllWorkers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, cfg.Repository.ChunkSize)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HELMSMAN_REDIS_ADDRESS", "env-redis:6379")
	t.Setenv("HELMSMAN_CHUNK_SIZE", "25")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Address)
	assert.Equal(t, 25, cfg.Repository.ChunkSize)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Redis.Address = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Repository.ChunkSize = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Repository.QueryByAppWorkers = -1
	assert.Error(t, cfg.Validate())
}
