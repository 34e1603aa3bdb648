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

	"github.com/helmsman-io/helmsman/internal/log"
	"github.com/helmsman-io/helmsman/pkg/errors"
	"github.com/helmsman-io/helmsman/pkg/execution"
)

// RetrieveOrchestrationForCorrelationID resolves an external correlation
// key to its in-flight orchestration. The pointer only has meaning while
// the orchestration is incomplete: a pointer to a completed or missing
// orchestration is garbage-collected on discovery and reported NotFound.
func (r *Repository) RetrieveOrchestrationForCorrelationID(ctx context.Context, correlationID string) (e *execution.Execution, err error) {
	defer func(start time.Time) { observeOperation("retrieveOrchestrationForCorrelationId", start, err) }(time.Now())

	key := correlationKey(correlationID)
	b, err := r.router.locate(ctx, key)
	if err != nil {
		return nil, err
	}

	id, err := b.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return nil, errors.NewNotFound("correlation", correlationID)
	}
	if err != nil {
		return nil, errors.NewBackend("retrieveOrchestrationForCorrelationId", err)
	}

	e, err = r.Retrieve(ctx, execution.Orchestration, id)
	if err != nil {
		if errors.IsNotFound(err) {
			r.gcCorrelation(ctx, b, key, correlationID)
			return nil, errors.NewNotFound("correlation", correlationID)
		}
		return nil, err
	}

	if e.Status.Complete() {
		r.gcCorrelation(ctx, b, key, correlationID)
		return nil, errors.NewNotFound("correlation", correlationID)
	}
	return e, nil
}

func (r *Repository) gcCorrelation(ctx context.Context, b *backend, key, correlationID string) {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		r.logger.Warn("unable to remove stale correlation pointer",
			log.String("correlation_id", correlationID),
			log.Error(err))
		return
	}
	r.logger.Debug("removed stale correlation pointer",
		log.String("correlation_id", correlationID))
}
