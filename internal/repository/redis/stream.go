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

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/helmsman-io/helmsman/internal/log"
	"github.com/helmsman-io/helmsman/internal/repository"
	"github.com/helmsman-io/helmsman/pkg/errors"
	"github.com/helmsman-io/helmsman/pkg/execution"
)

// Streaming queries resolve a seed id collection from an index key on
// each backend, then decode the ids in chunks on a bounded worker pool
// and merge both backends' output into one channel. Ordering across
// chunks is not guaranteed; a sorted-set-backed seed preserves its
// newest-first order within each chunk.

// seed is one backend's share of a streaming query.
type seed struct {
	backend  *backend
	indexKey string
	ids      []string
}

// RetrieveAll streams every execution of the given type across both
// backends.
func (r *Repository) RetrieveAll(ctx context.Context, t execution.Type) (<-chan *execution.Execution, error) {
	return r.stream(ctx, t, allJobsKey(t), false, repository.Criteria{}, r.queryAllSem)
}

// RetrievePipelinesForApplication streams an application's pipelines.
func (r *Repository) RetrievePipelinesForApplication(ctx context.Context, application string) (<-chan *execution.Execution, error) {
	return r.stream(ctx, execution.Pipeline, appKey(execution.Pipeline, application), false, repository.Criteria{}, r.queryByAppSem)
}

// RetrievePipelinesForPipelineConfigID streams a configuration's
// pipelines, newest first per backend.
func (r *Repository) RetrievePipelinesForPipelineConfigID(ctx context.Context, pipelineConfigID string, criteria repository.Criteria) (<-chan *execution.Execution, error) {
	return r.stream(ctx, execution.Pipeline, pipelineConfigKey(pipelineConfigID), true, criteria, r.queryByAppSem)
}

// RetrieveOrchestrationsForApplication streams an application's
// orchestrations.
func (r *Repository) RetrieveOrchestrationsForApplication(ctx context.Context, application string, criteria repository.Criteria) (<-chan *execution.Execution, error) {
	return r.stream(ctx, execution.Orchestration, appKey(execution.Orchestration, application), false, criteria, r.queryByAppSem)
}

// stream resolves the seeds synchronously, so index errors surface to
// the caller, then hands decode work to the pool. The returned channel
// is closed when all chunks finish or the consumer cancels the context.
func (r *Repository) stream(ctx context.Context, t execution.Type, indexKey string, sorted bool, criteria repository.Criteria, sem chan struct{}) (<-chan *execution.Execution, error) {
	var seeds []seed
	chosen := make(map[string]struct{})
	for _, b := range r.router.backends() {
		ids, err := r.seedIDs(ctx, b, t, indexKey, sorted, criteria, chosen)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			chosen[id] = struct{}{}
		}
		seeds = append(seeds, seed{backend: b, indexKey: indexKey, ids: ids})
	}

	out := make(chan *execution.Execution)
	go func() {
		defer close(out)
		g, gctx := errgroup.WithContext(ctx)
		for _, sd := range seeds {
			r.scheduleChunks(gctx, g, sd, t, sem, out)
		}
		// Workers only fail on cancellation; decode errors are absorbed.
		_ = g.Wait()
	}()
	return out, nil
}

// scheduleChunks submits one worker per chunk, bounded by the pool.
// Scheduling stops as soon as the consumer disengages.
func (r *Repository) scheduleChunks(ctx context.Context, g *errgroup.Group, sd seed, t execution.Type, sem chan struct{}, out chan<- *execution.Execution) {
	for start := 0; start < len(sd.ids); start += r.chunkSize {
		chunk := sd.ids[start:min(start+r.chunkSize, len(sd.ids))]
		select {
		case <-ctx.Done():
			return
		case sem <- struct{}{}:
		}
		g.Go(func() error {
			defer func() { <-sem }()
			return r.decodeChunk(ctx, sd, t, chunk, out)
		})
	}
}

// seedIDs resolves one backend's id collection: subtract ids already
// chosen by an earlier backend, pre-filter by status when requested,
// and apply the limit last.
func (r *Repository) seedIDs(ctx context.Context, b *backend, t execution.Type, indexKey string, sorted bool, criteria repository.Criteria, exclude map[string]struct{}) ([]string, error) {
	// With no filtering or deduplication in play, the limit can be
	// pushed down to a sorted-set range read.
	if sorted && len(criteria.Statuses) == 0 && criteria.Limit > 0 && len(exclude) == 0 {
		ids, err := b.client.ZRevRange(ctx, indexKey, 0, int64(criteria.Limit-1)).Result()
		if err != nil {
			return nil, errors.NewBackend("query", err)
		}
		return ids, nil
	}

	var ids []string
	var err error
	if sorted {
		ids, err = b.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	} else {
		ids, err = b.client.SMembers(ctx, indexKey).Result()
	}
	if err != nil {
		return nil, errors.NewBackend("query", err)
	}

	if len(exclude) > 0 {
		kept := ids[:0]
		for _, id := range ids {
			if _, ok := exclude[id]; !ok {
				kept = append(kept, id)
			}
		}
		ids = kept
	}

	if len(criteria.Statuses) > 0 {
		ids, err = r.filterByStatus(ctx, b, t, ids, criteria)
		if err != nil {
			return nil, err
		}
	}

	if criteria.Limit > 0 && len(ids) > criteria.Limit {
		ids = ids[:criteria.Limit]
	}
	return ids, nil
}

// filterByStatus reads every candidate's status field in one pipelined
// batch and keeps the ids whose status matches.
func (r *Repository) filterByStatus(ctx context.Context, b *backend, t execution.Type, ids []string, criteria repository.Criteria) ([]string, error) {
	if len(ids) == 0 {
		return ids, nil
	}

	cmds := make([]*goredis.StringCmd, len(ids))
	pipe := b.client.Pipeline()
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, executionKey(t, id), "status")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, errors.NewBackend("query", err)
	}

	kept := make([]string, 0, len(ids))
	for i, cmd := range cmds {
		status, err := cmd.Result()
		if err != nil {
			continue
		}
		if criteria.Matches(execution.Status(status)) {
			kept = append(kept, ids[i])
		}
	}
	return kept, nil
}

// decodeChunk decodes each id in the chunk. A NotFound means the seed
// index holds a stale id: remove it and move on. Any other decode error
// is logged and the id skipped but retained in the index.
func (r *Repository) decodeChunk(ctx context.Context, sd seed, t execution.Type, chunk []string, out chan<- *execution.Execution) error {
	for _, id := range chunk {
		e, err := r.retrieveOnBackend(ctx, sd.backend, t, id)
		if err != nil {
			if errors.IsNotFound(err) {
				r.repairIndex(ctx, sd.backend, sd.indexKey, id)
				continue
			}
			r.logger.Warn("skipping execution that failed to decode",
				log.String(log.ExecutionIDKey, id),
				log.String(log.BackendKey, sd.backend.name),
				log.Error(err))
			continue
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// repairIndex removes a stale id from the seed index, dispatching on
// the key's reported runtime type. Remove operations are idempotent, so
// concurrent readers racing on the same stale id are safe.
func (r *Repository) repairIndex(ctx context.Context, b *backend, indexKey, id string) {
	keyType, err := b.client.Type(ctx, indexKey).Result()
	if err != nil {
		r.logger.Warn("unable to inspect index for repair",
			log.String("index_key", indexKey), log.Error(err))
		return
	}

	switch keyType {
	case "zset":
		err = b.client.ZRem(ctx, indexKey, id).Err()
	case "set":
		err = b.client.SRem(ctx, indexKey, id).Err()
	default:
		return
	}
	if err != nil {
		r.logger.Warn("unable to remove stale index entry",
			log.String("index_key", indexKey),
			log.String(log.ExecutionIDKey, id),
			log.Error(err))
		return
	}

	recordIndexRepair(b.name)
	r.logger.Debug("removed stale index entry",
		log.String("index_key", indexKey),
		log.String(log.ExecutionIDKey, id),
		log.String(log.BackendKey, b.name))
}
