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

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helmsman-io/helmsman/pkg/errors"
	"github.com/helmsman-io/helmsman/pkg/execution"
)

// newTestRepository creates a repository backed by an in-process Redis.
func newTestRepository(t *testing.T, opts ...Option) (*Repository, goredis.UniversalClient) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, opts...), client
}

// newMigratingRepository creates a repository spanning a primary and a
// previous backend.
func newMigratingRepository(t *testing.T, opts ...Option) (*Repository, goredis.UniversalClient, goredis.UniversalClient) {
	t.Helper()

	primarySrv := miniredis.RunT(t)
	previousSrv := miniredis.RunT(t)
	primary := goredis.NewClient(&goredis.Options{Addr: primarySrv.Addr()})
	previous := goredis.NewClient(&goredis.Options{Addr: previousSrv.Addr()})
	t.Cleanup(func() {
		primary.Close()
		previous.Close()
	})

	opts = append([]Option{WithPreviousBackend(previous)}, opts...)
	return New(primary, opts...), primary, previous
}

// testPipeline builds a stored-shape pipeline with one wait stage.
func testPipeline(id, application string) *execution.Execution {
	e := execution.NewPipeline(application)
	e.ID = id
	e.PipelineConfigID = "cfg"
	e.BuildTime = 1000
	s := execution.NewStage("wait", "wait")
	s.ID = "s1"
	s.RefID = "1"
	e.AttachStage(s)
	return e
}

func testOrchestration(id, application string) *execution.Execution {
	e := execution.NewOrchestration(application)
	e.ID = id
	e.BuildTime = 2000
	e.Description = "ad-hoc task"
	s := execution.NewStage("runTask", "run")
	s.ID = "t1"
	e.AttachStage(s)
	return e
}

// S1: store+retrieve pipeline, including the pipeline-config index.
func TestStoreAndRetrievePipeline(t *testing.T) {
	repo, client := newTestRepository(t)
	ctx := context.Background()

	e := testPipeline("p1", "demo")
	require.NoError(t, repo.Store(ctx, e))

	got, err := repo.Retrieve(ctx, execution.Pipeline, "p1")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Application)
	require.Len(t, got.Stages, 1)
	assert.Equal(t, "s1", got.Stages[0].ID)

	members, err := client.ZRangeWithScores(ctx, "pipeline:executions:cfg", 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "p1", members[0].Member)
	assert.Equal(t, float64(1000), members[0].Score)

	isMember, err := client.SIsMember(ctx, "allJobs:pipeline", "p1").Result()
	require.NoError(t, err)
	assert.True(t, isMember)

	isMember, err = client.SIsMember(ctx, "pipeline:app:demo", "p1").Result()
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestStoreAndRetrieveOrchestration(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	e := testOrchestration("o1", "demo")
	require.NoError(t, repo.Store(ctx, e))

	got, err := repo.Retrieve(ctx, execution.Orchestration, "o1")
	require.NoError(t, err)
	assert.Equal(t, "ad-hoc task", got.Description)
	require.Len(t, got.Stages, 1)
	assert.Same(t, got, got.Stages[0].Execution())
}

func TestStore_MissingConfigIDUsesSentinel(t *testing.T) {
	repo, client := newTestRepository(t)
	ctx := context.Background()

	e := testPipeline("p1", "demo")
	e.PipelineConfigID = ""
	require.NoError(t, repo.Store(ctx, e))

	n, err := client.ZCard(ctx, "pipeline:executions:---").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_ReplacesStageIndex(t *testing.T) {
	repo, client := newTestRepository(t)
	ctx := context.Background()

	e := testPipeline("p1", "demo")
	require.NoError(t, repo.Store(ctx, e))

	// Re-store with a different stage set; the list must be replaced,
	// not appended to.
	e.Stages = nil
	s := execution.NewStage("bake", "bake")
	s.ID = "s9"
	e.AttachStage(s)
	require.NoError(t, repo.Store(ctx, e))

	ids, err := client.LRange(ctx, "pipeline:p1:stageIndex", 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"s9"}, ids)
}

func TestRetrieve_NotFound(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.Retrieve(context.Background(), execution.Pipeline, "nope")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

// Property 7: when both backends hold an id, the primary wins.
func TestRetrieve_PrimaryWinsAcrossBackends(t *testing.T) {
	repo, primary, previous := newMigratingRepository(t)
	ctx := context.Background()

	require.NoError(t, primary.HSet(ctx, "pipeline:p1", map[string]string{
		"application": "primary-app", "status": "RUNNING", "buildTime": "1",
	}).Err())
	require.NoError(t, previous.HSet(ctx, "pipeline:p1", map[string]string{
		"application": "previous-app", "status": "RUNNING", "buildTime": "1",
	}).Err())

	got, err := repo.Retrieve(ctx, execution.Pipeline, "p1")
	require.NoError(t, err)
	assert.Equal(t, "primary-app", got.Application)
}

func TestRetrieve_FallsThroughToPreviousBackend(t *testing.T) {
	repo, _, previous := newMigratingRepository(t)
	ctx := context.Background()

	require.NoError(t, previous.HSet(ctx, "orchestration:o1", map[string]string{
		"application": "demo", "status": "SUCCEEDED", "buildTime": "1",
	}).Err())

	got, err := repo.Retrieve(ctx, execution.Orchestration, "o1")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Application)
}

// Round-trip: store then retrieve preserves the aggregate (property 1).
func TestRoundTrip_FullAggregate(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	e := testPipeline("p1", "demo")
	e.Trigger = execution.Trigger{"type": "cron", "correlationId": "c-1"}
	e.Notifications = []map[string]any{{"type": "email"}}
	e.Stages[0].Context = map[string]any{"waitTime": "10"}
	e.Stages[0].Tasks = []execution.Task{{"id": "1", "status": "NOT_STARTED"}}
	e.Stages[0].RequisiteStageRefIDs = []string{"0", "2"}

	require.NoError(t, repo.Store(ctx, e))
	got, err := repo.Retrieve(ctx, execution.Pipeline, "p1")
	require.NoError(t, err)

	assert.Equal(t, e.Trigger.CorrelationID(), got.Trigger.CorrelationID())
	assert.Equal(t, e.Notifications, got.Notifications)
	require.Len(t, got.Stages, 1)
	assert.Equal(t, e.Stages[0].Context, got.Stages[0].Context)
	assert.Equal(t, e.Stages[0].Tasks, got.Stages[0].Tasks)
	assert.Equal(t, e.Stages[0].RequisiteStageRefIDs, got.Stages[0].RequisiteStageRefIDs)
}
