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

package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmsman-io/helmsman/pkg/errors"
	"github.com/helmsman-io/helmsman/pkg/execution"
)

func TestLocate_DefaultsToPrimary(t *testing.T) {
	repo, _, _ := newMigratingRepository(t)

	// Unknown key: writes land on the primary.
	b, err := repo.router.locate(context.Background(), "pipeline:new")
	require.NoError(t, err)
	assert.Equal(t, repo.router.primary, b)
}

func TestLocate_PrefersPrimaryWhenBothHold(t *testing.T) {
	repo, primary, previous := newMigratingRepository(t)
	ctx := context.Background()

	require.NoError(t, primary.HSet(ctx, "pipeline:p1", "status", "RUNNING").Err())
	require.NoError(t, previous.HSet(ctx, "pipeline:p1", "status", "RUNNING").Err())

	b, err := repo.router.locate(ctx, "pipeline:p1")
	require.NoError(t, err)
	assert.Equal(t, repo.router.primary, b)
}

func TestLocate_FindsKeyOnPrevious(t *testing.T) {
	repo, _, previous := newMigratingRepository(t)
	ctx := context.Background()

	require.NoError(t, previous.HSet(ctx, "pipeline:p1", "status", "RUNNING").Err())

	b, err := repo.router.locate(ctx, "pipeline:p1")
	require.NoError(t, err)
	assert.Equal(t, repo.router.previous, b)
}

func TestFetchKey_ProbesBothTypes(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, testPipeline("p1", "demo")))
	require.NoError(t, repo.Store(ctx, testOrchestration("o1", "demo")))

	key, b, err := repo.router.fetchKey(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "pipeline:p1", key)
	assert.Equal(t, repo.router.primary, b)

	key, _, err = repo.router.fetchKey(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "orchestration:o1", key)
}

func TestFetchKey_AcceptsFullyQualifiedKey(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, testOrchestration("o1", "demo")))

	key, _, err := repo.router.fetchKey(ctx, "orchestration:o1")
	require.NoError(t, err)
	assert.Equal(t, "orchestration:o1", key)
}

func TestFetchKey_UnknownID(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, _, err := repo.router.fetchKey(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestTypeFromKey(t *testing.T) {
	typ, ok := typeFromKey("pipeline:abc")
	require.True(t, ok)
	assert.Equal(t, execution.Pipeline, typ)

	typ, ok = typeFromKey("orchestration:abc")
	require.True(t, ok)
	assert.Equal(t, execution.Orchestration, typ)

	_, ok = typeFromKey("allJobs:pipeline")
	assert.False(t, ok)
}
