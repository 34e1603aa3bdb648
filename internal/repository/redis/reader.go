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
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/helmsman-io/helmsman/pkg/errors"
	"github.com/helmsman-io/helmsman/pkg/execution"
)

// Retrieve loads one execution from the backend that holds it.
func (r *Repository) Retrieve(ctx context.Context, t execution.Type, id string) (e *execution.Execution, err error) {
	ctx, span := r.tracer.Start(ctx, "repository.Retrieve")
	defer span.End()
	defer func(start time.Time) { observeOperation("retrieve", start, err) }(time.Now())

	b, err := r.router.locate(ctx, executionKey(t, id))
	if err != nil {
		return nil, err
	}
	return r.retrieveOnBackend(ctx, b, t, id)
}

// retrieveOnBackend reads the execution hash and the ordered stage-id
// list in a single transaction, so a concurrent AddStage or StoreStage
// cannot leave an id in the index whose fields are not also visible.
func (r *Repository) retrieveOnBackend(ctx context.Context, b *backend, t execution.Type, id string) (*execution.Execution, error) {
	key := executionKey(t, id)

	var hashCmd *goredis.MapStringStringCmd
	var idxCmd *goredis.StringSliceCmd
	_, err := b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		hashCmd = pipe.HGetAll(ctx, key)
		idxCmd = pipe.LRange(ctx, stageIndexKey(key), 0, -1)
		return nil
	})
	if err != nil && err != goredis.Nil {
		return nil, errors.NewBackend("retrieve", err)
	}

	hash := hashCmd.Val()
	if len(hash) == 0 {
		return nil, errors.NewNotFound("execution", id)
	}
	return decodeExecution(t, id, hash, idxCmd.Val())
}
