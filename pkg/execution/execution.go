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

// Package execution defines the domain model persisted by the execution
// repository: executions (pipelines and orchestrations), their ordered
// stages, and stage tasks.
//
// Ownership is one-way: an Execution owns its Stages. The stage's
// back-reference to its execution is a non-owning handle reconstructed
// when an execution is loaded; it is never serialized.
package execution

import (
	"time"

	"github.com/google/uuid"
)

// Type distinguishes the two kinds of executions.
type Type string

const (
	// Pipeline is a long-running execution versioned by a pipeline
	// configuration id.
	Pipeline Type = "PIPELINE"
	// Orchestration is an ad-hoc, application-scoped execution.
	Orchestration Type = "ORCHESTRATION"
)

// DefaultEngine is the execution engine tag assumed for records that
// predate engine tagging.
const DefaultEngine = "v2"

// Execution is the root aggregate: one run of a pipeline or orchestration.
type Execution struct {
	Type        Type   `json:"type"`
	ID          string `json:"id"`
	Application string `json:"application"`

	Status    Status `json:"status"`
	BuildTime int64  `json:"buildTime"`
	StartTime *int64 `json:"startTime,omitempty"`
	EndTime   *int64 `json:"endTime,omitempty"`

	Canceled           bool   `json:"canceled"`
	CanceledBy         string `json:"canceledBy,omitempty"`
	CancellationReason string `json:"cancellationReason,omitempty"`

	LimitConcurrent      bool `json:"limitConcurrent"`
	KeepWaitingPipelines bool `json:"keepWaitingPipelines"`

	Authentication map[string]any `json:"authentication,omitempty"`
	Paused         *PausedDetails `json:"paused,omitempty"`
	Engine         string         `json:"executionEngine,omitempty"`
	Origin         string         `json:"origin,omitempty"`
	Trigger        Trigger        `json:"trigger,omitempty"`
	Context        map[string]any `json:"context,omitempty"`

	Stages []*Stage `json:"stages,omitempty"`

	// Pipeline-only fields.
	Name             string           `json:"name,omitempty"`
	PipelineConfigID string           `json:"pipelineConfigId,omitempty"`
	Notifications    []map[string]any `json:"notifications,omitempty"`
	InitialConfig    map[string]any   `json:"initialConfig,omitempty"`

	// Orchestration-only field.
	Description string `json:"description,omitempty"`
}

// NewPipeline creates a pipeline execution for the given application.
func NewPipeline(application string) *Execution {
	return newExecution(Pipeline, application)
}

// NewOrchestration creates an orchestration execution for the given
// application.
func NewOrchestration(application string) *Execution {
	return newExecution(Orchestration, application)
}

func newExecution(t Type, application string) *Execution {
	return &Execution{
		Type:        t,
		ID:          uuid.NewString(),
		Application: application,
		Status:      StatusNotStarted,
		BuildTime:   time.Now().UnixMilli(),
		Engine:      DefaultEngine,
	}
}

// AttachStage appends a stage and sets its back-reference.
func (e *Execution) AttachStage(s *Stage) {
	s.execution = e
	e.Stages = append(e.Stages, s)
}

// StageByID returns the stage with the given id, or nil.
func (e *Execution) StageByID(id string) *Stage {
	for _, s := range e.Stages {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// StageByRefID returns the stage with the given caller-chosen refId, or nil.
func (e *Execution) StageByRefID(refID string) *Stage {
	for _, s := range e.Stages {
		if s.RefID == refID {
			return s
		}
	}
	return nil
}

// StageIDs returns the ids of the stages in their authoritative order.
func (e *Execution) StageIDs() []string {
	ids := make([]string, len(e.Stages))
	for i, s := range e.Stages {
		ids[i] = s.ID
	}
	return ids
}

// PausedDetails records who paused and resumed an execution, and when.
// Times are epoch milliseconds.
type PausedDetails struct {
	PausedBy   string `json:"pausedBy,omitempty"`
	ResumedBy  string `json:"resumedBy,omitempty"`
	PauseTime  int64  `json:"pauseTime,omitempty"`
	ResumeTime int64  `json:"resumeTime,omitempty"`
}

// IsPaused reports whether the pause is still in effect.
func (p *PausedDetails) IsPaused() bool {
	return p != nil && p.PauseTime > 0 && p.ResumeTime == 0
}

// PausedDuration returns how long the execution has been (or was) paused.
func (p *PausedDetails) PausedDuration() time.Duration {
	if p == nil || p.PauseTime == 0 {
		return 0
	}
	end := p.ResumeTime
	if end == 0 {
		end = time.Now().UnixMilli()
	}
	return time.Duration(end-p.PauseTime) * time.Millisecond
}

// Trigger is the structured value that started an execution. Its shape is
// caller-defined; the repository persists it whole. Two keys have meaning
// to the repository: "correlationId" and "parentExecution".
type Trigger map[string]any

// CorrelationID returns the trigger's correlation key, if present.
func (t Trigger) CorrelationID() string {
	if t == nil {
		return ""
	}
	if v, ok := t["correlationId"].(string); ok {
		return v
	}
	return ""
}

// ParentExecution returns the reified parent execution, if the trigger
// carries one and it has been decoded.
func (t Trigger) ParentExecution() *Execution {
	if t == nil {
		return nil
	}
	if v, ok := t["parentExecution"].(*Execution); ok {
		return v
	}
	return nil
}
