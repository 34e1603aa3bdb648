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

// Package repository defines the persistence interface for executions.
//
// The interface is what the control plane (schedulers, stage runners,
// APIs) programs against; implementations live in subpackages. Streaming
// queries return a receive-only channel that is closed when the query
// completes; consumers cancel by cancelling the context.
package repository

import (
	"context"

	"github.com/helmsman-io/helmsman/pkg/execution"
)

// Criteria filters streaming queries.
type Criteria struct {
	// Statuses keeps only executions whose status is in the set.
	// Empty means no status filtering.
	Statuses []execution.Status

	// Limit caps the number of executions returned per backend,
	// applied after status filtering. Zero or negative means no limit.
	Limit int
}

// Matches reports whether the given status passes the criteria.
func (c Criteria) Matches(s execution.Status) bool {
	if len(c.Statuses) == 0 {
		return true
	}
	for _, want := range c.Statuses {
		if s == want {
			return true
		}
	}
	return false
}

// ExecutionRepository is the durable state layer for the orchestrator.
type ExecutionRepository interface {
	// Store persists a full execution, replacing any previous record,
	// and maintains the secondary indices.
	Store(ctx context.Context, e *execution.Execution) error

	// StoreStage persists a single stage of an already-stored execution.
	StoreStage(ctx context.Context, s *execution.Stage) error

	// UpdateStageContext overwrites only the stage's context field.
	UpdateStageContext(ctx context.Context, s *execution.Stage) error

	// AddStage inserts a synthetic stage before or after its parent.
	// Fails with a ValidationError for non-synthetic stages.
	AddStage(ctx context.Context, s *execution.Stage) error

	// RemoveStage removes a stage and all of its persisted fields.
	RemoveStage(ctx context.Context, e *execution.Execution, stageID string) error

	// Retrieve loads one execution. Fails with a NotFoundError when no
	// record exists under the id.
	Retrieve(ctx context.Context, t execution.Type, id string) (*execution.Execution, error)

	// Cancel marks the execution canceled. A NOT_STARTED execution
	// transitions to CANCELED; a running one keeps its status and is
	// stopped by the runner when it observes the flag.
	Cancel(ctx context.Context, id, user, reason string) error

	// IsCanceled reads the canceled flag.
	IsCanceled(ctx context.Context, id string) (bool, error)

	// Pause pauses a RUNNING execution; otherwise fails with an
	// InvalidStateError.
	Pause(ctx context.Context, id, user string) error

	// Resume resumes a PAUSED execution. With ignoreCurrentStatus the
	// precondition is skipped.
	Resume(ctx context.Context, id, user string, ignoreCurrentStatus bool) error

	// UpdateStatus sets the status, clearing the canceled flag and
	// stamping startTime on RUNNING, and stamping endTime on any
	// complete status.
	UpdateStatus(ctx context.Context, id string, status execution.Status) error

	// StoreExecutionContext merges content into the execution's context
	// using optimistic concurrency.
	StoreExecutionContext(ctx context.Context, id string, content map[string]any) error

	// Delete removes the execution and its index memberships.
	Delete(ctx context.Context, t execution.Type, id string) error

	// RetrieveAll streams every execution of the given type.
	RetrieveAll(ctx context.Context, t execution.Type) (<-chan *execution.Execution, error)

	// RetrievePipelinesForApplication streams an application's pipelines.
	RetrievePipelinesForApplication(ctx context.Context, application string) (<-chan *execution.Execution, error)

	// RetrievePipelinesForPipelineConfigID streams a configuration's
	// pipelines, newest first per backend.
	RetrievePipelinesForPipelineConfigID(ctx context.Context, pipelineConfigID string, criteria Criteria) (<-chan *execution.Execution, error)

	// RetrieveOrchestrationsForApplication streams an application's
	// orchestrations.
	RetrieveOrchestrationsForApplication(ctx context.Context, application string, criteria Criteria) (<-chan *execution.Execution, error)

	// RetrieveOrchestrationForCorrelationID resolves a correlation key
	// to its in-flight orchestration, garbage-collecting the pointer if
	// the orchestration has completed.
	RetrieveOrchestrationForCorrelationID(ctx context.Context, correlationID string) (*execution.Execution, error)
}
