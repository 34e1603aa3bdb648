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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/helmsman-io/helmsman/internal/log"
	"github.com/helmsman-io/helmsman/pkg/errors"
	"github.com/helmsman-io/helmsman/pkg/execution"
)

// Store persists a full execution atomically: secondary indices, the
// field hash, and the ordered stage-id list all go through one
// transaction on the located backend. The correlation pointer, if any,
// is set outside the transaction; readers self-heal stale pointers.
func (r *Repository) Store(ctx context.Context, e *execution.Execution) (err error) {
	ctx, span := r.tracer.Start(ctx, "repository.Store")
	defer span.End()
	defer func(start time.Time) { observeOperation("store", start, err) }(time.Now())

	if e.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "execution id is required"}
	}

	key := executionKey(e.Type, e.ID)
	b, err := r.router.locate(ctx, key)
	if err != nil {
		return err
	}

	fields, err := encodeExecution(e)
	if err != nil {
		return err
	}
	stageIDs := e.StageIDs()

	_, err = b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, allJobsKey(e.Type), e.ID)
		pipe.SAdd(ctx, appKey(e.Type, e.Application), e.ID)
		if e.Type == execution.Pipeline {
			pipe.ZAdd(ctx, pipelineConfigKey(e.PipelineConfigID), goredis.Z{
				Score:  float64(e.BuildTime),
				Member: e.ID,
			})
		}
		pipe.HDel(ctx, key, legacyConfigField)
		pipe.HSet(ctx, key, fields)
		idxKey := stageIndexKey(key)
		pipe.Del(ctx, idxKey)
		if len(stageIDs) > 0 {
			pipe.RPush(ctx, idxKey, toAnySlice(stageIDs)...)
		}
		return nil
	})
	if err != nil {
		return errors.NewBackend("store", err)
	}

	if cid := e.Trigger.CorrelationID(); cid != "" {
		if err := b.client.Set(ctx, correlationKey(cid), e.ID, 0).Err(); err != nil {
			return errors.NewBackend("store", err)
		}
	}

	r.logger.Debug("stored execution",
		log.String(log.ExecutionIDKey, e.ID),
		log.String(log.ExecutionTypeKey, string(e.Type)),
		log.String(log.ApplicationKey, e.Application),
		log.String(log.BackendKey, b.name),
		log.Int("stages", len(stageIDs)))
	return nil
}

// StoreStage persists one stage of an already-stored execution. Fields
// whose new value is absent are deleted in the same transaction.
func (r *Repository) StoreStage(ctx context.Context, s *execution.Stage) (err error) {
	ctx, span := r.tracer.Start(ctx, "repository.StoreStage")
	defer span.End()
	defer func(start time.Time) { observeOperation("storeStage", start, err) }(time.Now())

	e := s.Execution()
	if e == nil {
		return &errors.ValidationError{Field: "stage", Message: "stage is not attached to an execution"}
	}

	key := executionKey(e.Type, e.ID)
	b, err := r.router.locate(ctx, key)
	if err != nil {
		return err
	}

	fields, absent, err := encodeStage(s)
	if err != nil {
		return err
	}

	_, err = b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(fields) > 0 {
			pipe.HSet(ctx, key, fields)
		}
		if len(absent) > 0 {
			pipe.HDel(ctx, key, absent...)
		}
		return nil
	})
	if err != nil {
		return errors.NewBackend("storeStage", err)
	}
	return nil
}

// UpdateStageContext overwrites only the stage's context field.
func (r *Repository) UpdateStageContext(ctx context.Context, s *execution.Stage) (err error) {
	defer func(start time.Time) { observeOperation("updateStageContext", start, err) }(time.Now())

	e := s.Execution()
	if e == nil {
		return &errors.ValidationError{Field: "stage", Message: "stage is not attached to an execution"}
	}

	key := executionKey(e.Type, e.ID)
	b, err := r.router.locate(ctx, key)
	if err != nil {
		return err
	}

	stageContext := s.Context
	if stageContext == nil {
		stageContext = map[string]any{}
	}
	blob, err := json.Marshal(stageContext)
	if err != nil {
		return fmt.Errorf("marshaling context for stage %s: %w", s.ID, err)
	}

	if err := b.client.HSet(ctx, key, stageField(s.ID, "context"), string(blob)).Err(); err != nil {
		return errors.NewBackend("updateStageContext", err)
	}
	return nil
}

// AddStage inserts a synthetic stage into an existing execution,
// splicing its id into the ordered list before or after the parent
// according to the synthetic owner. The denormalized stageIndex field
// is rewritten from the list after the transaction commits; a reader in
// that window sees a momentary disagreement and must prefer the list.
func (r *Repository) AddStage(ctx context.Context, s *execution.Stage) (err error) {
	ctx, span := r.tracer.Start(ctx, "repository.AddStage")
	defer span.End()
	defer func(start time.Time) { observeOperation("addStage", start, err) }(time.Now())

	if !s.Synthetic() {
		return &errors.ValidationError{
			Field:   "stage",
			Message: "only synthetic stages can be inserted into an existing execution",
		}
	}

	e := s.Execution()
	if e == nil {
		return &errors.ValidationError{Field: "stage", Message: "stage is not attached to an execution"}
	}

	key := executionKey(e.Type, e.ID)
	idxKey := stageIndexKey(key)
	b, err := r.router.locate(ctx, key)
	if err != nil {
		return err
	}

	fields, _, err := encodeStage(s)
	if err != nil {
		return err
	}

	_, err = b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		if s.SyntheticStageOwner == execution.StageBefore {
			pipe.LInsertBefore(ctx, idxKey, s.ParentStageID, s.ID)
		} else {
			pipe.LInsertAfter(ctx, idxKey, s.ParentStageID, s.ID)
		}
		return nil
	})
	if err != nil {
		return errors.NewBackend("addStage", err)
	}

	ids, err := b.client.LRange(ctx, idxKey, 0, -1).Result()
	if err != nil {
		return errors.NewBackend("addStage", err)
	}
	if err := b.client.HSet(ctx, key, stageIndexField, strings.Join(ids, ",")).Err(); err != nil {
		return errors.NewBackend("addStage", err)
	}

	r.logger.Debug("added synthetic stage",
		log.String(log.ExecutionIDKey, e.ID),
		log.String(log.StageIDKey, s.ID),
		log.String("owner", string(s.SyntheticStageOwner)),
		log.String("parent_stage_id", s.ParentStageID))
	return nil
}

// RemoveStage removes a stage: the denormalized index, the ordered
// list, and every namespaced stage field go in one transaction. The
// known field suffixes are enumerated deterministically so the deletion
// covers the full set.
func (r *Repository) RemoveStage(ctx context.Context, e *execution.Execution, stageID string) (err error) {
	ctx, span := r.tracer.Start(ctx, "repository.RemoveStage")
	defer span.End()
	defer func(start time.Time) { observeOperation("removeStage", start, err) }(time.Now())

	key := executionKey(e.Type, e.ID)
	idxKey := stageIndexKey(key)
	b, err := r.router.locate(ctx, key)
	if err != nil {
		return err
	}

	ids, err := b.client.LRange(ctx, idxKey, 0, -1).Result()
	if err != nil {
		return errors.NewBackend("removeStage", err)
	}
	listExists := len(ids) > 0
	if !listExists {
		// Legacy record: the denormalized field is all we have.
		joined, err := b.client.HGet(ctx, key, stageIndexField).Result()
		if err != nil && err != goredis.Nil {
			return errors.NewBackend("removeStage", err)
		}
		ids = splitIndex(joined)
	}

	remaining := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != stageID {
			remaining = append(remaining, id)
		}
	}

	toDelete := make([]string, len(stageFieldSuffixes))
	for i, suffix := range stageFieldSuffixes {
		toDelete[i] = stageField(stageID, suffix)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, stageIndexField, strings.Join(remaining, ","))
		if listExists {
			pipe.LRem(ctx, idxKey, 0, stageID)
		} else if len(remaining) > 0 {
			pipe.Del(ctx, idxKey)
			pipe.RPush(ctx, idxKey, toAnySlice(remaining)...)
		}
		pipe.HDel(ctx, key, toDelete...)
		return nil
	})
	if err != nil {
		return errors.NewBackend("removeStage", err)
	}
	return nil
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
