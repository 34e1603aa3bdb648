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
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/helmsman-io/helmsman/internal/log"
	"github.com/helmsman-io/helmsman/pkg/errors"
	"github.com/helmsman-io/helmsman/pkg/execution"
)

// Cancel marks the execution canceled. A NOT_STARTED execution
// transitions straight to CANCELED; a running one keeps its status and
// its canceled flag set — the runner observes the flag and stops it.
func (r *Repository) Cancel(ctx context.Context, id, user, reason string) (err error) {
	defer func(start time.Time) { observeOperation("cancel", start, err) }(time.Now())

	key, b, err := r.router.fetchKey(ctx, id)
	if err != nil {
		return err
	}

	current, err := b.client.HGet(ctx, key, "status").Result()
	if err != nil && err != goredis.Nil {
		return errors.NewBackend("cancel", err)
	}

	fields := map[string]string{"canceled": "true"}
	if user != "" {
		fields["canceledBy"] = user
	}
	if reason != "" {
		fields["cancellationReason"] = reason
	}
	if execution.Status(current) == execution.StatusNotStarted {
		fields["status"] = string(execution.StatusCanceled)
	}

	if err := b.client.HSet(ctx, key, fields).Err(); err != nil {
		return errors.NewBackend("cancel", err)
	}
	return nil
}

// IsCanceled reads the canceled flag.
func (r *Repository) IsCanceled(ctx context.Context, id string) (canceled bool, err error) {
	defer func(start time.Time) { observeOperation("isCanceled", start, err) }(time.Now())

	key, b, err := r.router.fetchKey(ctx, id)
	if err != nil {
		return false, err
	}
	raw, err := b.client.HGet(ctx, key, "canceled").Result()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.NewBackend("isCanceled", err)
	}
	return raw == "true", nil
}

// Pause pauses a RUNNING execution and records who paused it.
func (r *Repository) Pause(ctx context.Context, id, user string) (err error) {
	defer func(start time.Time) { observeOperation("pause", start, err) }(time.Now())

	key, b, err := r.router.fetchKey(ctx, id)
	if err != nil {
		return err
	}

	current, err := b.client.HGet(ctx, key, "status").Result()
	if err != nil && err != goredis.Nil {
		return errors.NewBackend("pause", err)
	}
	if execution.Status(current) != execution.StatusRunning {
		return &errors.InvalidStateError{
			ID:        id,
			Operation: "pause",
			Current:   current,
			Expected:  string(execution.StatusRunning),
		}
	}

	paused := &execution.PausedDetails{
		PausedBy:  user,
		PauseTime: time.Now().UnixMilli(),
	}
	blob, err := json.Marshal(paused)
	if err != nil {
		return fmt.Errorf("marshaling paused details: %w", err)
	}

	err = b.client.HSet(ctx, key, map[string]string{
		"paused": string(blob),
		"status": string(execution.StatusPaused),
	}).Err()
	if err != nil {
		return errors.NewBackend("pause", err)
	}
	return nil
}

// Resume resumes a PAUSED execution. ignoreCurrentStatus skips the
// precondition, for recovery paths that already hold the truth.
func (r *Repository) Resume(ctx context.Context, id, user string, ignoreCurrentStatus bool) (err error) {
	defer func(start time.Time) { observeOperation("resume", start, err) }(time.Now())

	key, b, err := r.router.fetchKey(ctx, id)
	if err != nil {
		return err
	}

	if !ignoreCurrentStatus {
		current, err := b.client.HGet(ctx, key, "status").Result()
		if err != nil && err != goredis.Nil {
			return errors.NewBackend("resume", err)
		}
		if execution.Status(current) != execution.StatusPaused {
			return &errors.InvalidStateError{
				ID:        id,
				Operation: "resume",
				Current:   current,
				Expected:  string(execution.StatusPaused),
			}
		}
	}

	var paused execution.PausedDetails
	raw, err := b.client.HGet(ctx, key, "paused").Result()
	if err != nil && err != goredis.Nil {
		return errors.NewBackend("resume", err)
	}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &paused); err != nil {
			return fmt.Errorf("decoding paused details for %s: %w", id, err)
		}
	}
	paused.ResumedBy = user
	paused.ResumeTime = time.Now().UnixMilli()
	blob, err := json.Marshal(&paused)
	if err != nil {
		return fmt.Errorf("marshaling paused details: %w", err)
	}

	err = b.client.HSet(ctx, key, map[string]string{
		"paused": string(blob),
		"status": string(execution.StatusRunning),
	}).Err()
	if err != nil {
		return errors.NewBackend("resume", err)
	}
	return nil
}

// UpdateStatus sets the status. A transition to RUNNING clears the
// canceled flag and stamps startTime; any complete status stamps
// endTime.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status execution.Status) (err error) {
	defer func(start time.Time) { observeOperation("updateStatus", start, err) }(time.Now())

	key, b, err := r.router.fetchKey(ctx, id)
	if err != nil {
		return err
	}

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	fields := map[string]string{"status": string(status)}
	if status == execution.StatusRunning {
		fields["canceled"] = "false"
		fields["startTime"] = now
	} else if status.Complete() {
		fields["endTime"] = now
	}

	if err := b.client.HSet(ctx, key, fields).Err(); err != nil {
		return errors.NewBackend("updateStatus", err)
	}
	return nil
}

// StoreExecutionContext merges content into the execution's context
// field under optimistic concurrency: watch the key, read-merge-write
// in a transaction, restart on commit failure. Attempts are capped;
// sustained contention surfaces as a BackendError.
func (r *Repository) StoreExecutionContext(ctx context.Context, id string, content map[string]any) (err error) {
	defer func(start time.Time) { observeOperation("storeExecutionContext", start, err) }(time.Now())

	key, b, err := r.router.fetchKey(ctx, id)
	if err != nil {
		return err
	}

	for attempt := 1; attempt <= r.contextMergeRetries; attempt++ {
		err := b.client.Watch(ctx, func(tx *goredis.Tx) error {
			raw, err := tx.HGet(ctx, key, "context").Result()
			if err != nil && err != goredis.Nil {
				return err
			}

			merged := map[string]any{}
			if raw != "" {
				if err := json.Unmarshal([]byte(raw), &merged); err != nil {
					return fmt.Errorf("decoding context for %s: %w", id, err)
				}
			}
			for k, v := range content {
				merged[k] = v
			}
			blob, err := json.Marshal(merged)
			if err != nil {
				return fmt.Errorf("marshaling context: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.HSet(ctx, key, "context", string(blob))
				return nil
			})
			return err
		}, key)

		if err == nil {
			return nil
		}
		if err == goredis.TxFailedErr {
			r.logger.Debug("context merge lost the race, retrying",
				log.String(log.ExecutionIDKey, id),
				log.Int("attempt", attempt))
			continue
		}
		return errors.NewBackend("storeExecutionContext", err)
	}

	return &errors.BackendError{
		Op:      "storeExecutionContext",
		Message: fmt.Sprintf("context merge for %s did not commit after %d attempts", id, r.contextMergeRetries),
	}
}

// Delete removes the execution and its index memberships. Missing
// records are tolerated, and the per-execution hash plus the allJobs
// membership are always attempted even if the application or config
// lookup failed.
func (r *Repository) Delete(ctx context.Context, t execution.Type, id string) (err error) {
	defer func(start time.Time) { observeOperation("delete", start, err) }(time.Now())

	key := executionKey(t, id)
	b, err := r.router.locate(ctx, key)
	if err != nil {
		return err
	}

	var firstErr error
	app, err := b.client.HGet(ctx, key, "application").Result()
	if err != nil && err != goredis.Nil {
		firstErr = err
	}
	if app != "" {
		if err := b.client.SRem(ctx, appKey(t, app), id).Err(); err != nil {
			firstErr = coalesce(firstErr, err)
		}
	}
	if t == execution.Pipeline {
		cfg, err := b.client.HGet(ctx, key, "pipelineConfigId").Result()
		if err != nil && err != goredis.Nil {
			firstErr = coalesce(firstErr, err)
		} else if err := b.client.ZRem(ctx, pipelineConfigKey(cfg), id).Err(); err != nil {
			firstErr = coalesce(firstErr, err)
		}
	}

	if err := b.client.Del(ctx, key, stageIndexKey(key)).Err(); err != nil {
		firstErr = coalesce(firstErr, err)
	}
	if err := b.client.SRem(ctx, allJobsKey(t), id).Err(); err != nil {
		firstErr = coalesce(firstErr, err)
	}

	if firstErr != nil {
		return errors.NewBackend("delete", firstErr)
	}
	return nil
}

func coalesce(first, next error) error {
	if first != nil {
		return first
	}
	return next
}
