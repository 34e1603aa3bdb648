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

package execution

import "github.com/google/uuid"

// SyntheticStageOwner declares where a machinery-inserted stage sits
// relative to its parent.
type SyntheticStageOwner string

const (
	// StageBefore places the synthetic stage immediately before its parent.
	StageBefore SyntheticStageOwner = "STAGE_BEFORE"
	// StageAfter places the synthetic stage immediately after its parent.
	StageAfter SyntheticStageOwner = "STAGE_AFTER"
)

// Stage is one node of an execution. Stages are ordered; the order on
// disk is authoritative.
type Stage struct {
	// execution is the non-owning back-reference to the parent aggregate.
	// Reconstructed on load, never serialized.
	execution *Execution

	ID    string `json:"id"`
	RefID string `json:"refId,omitempty"`
	Type  string `json:"type,omitempty"`
	Name  string `json:"name,omitempty"`

	Status    Status `json:"status"`
	StartTime *int64 `json:"startTime,omitempty"`
	EndTime   *int64 `json:"endTime,omitempty"`

	SyntheticStageOwner  SyntheticStageOwner `json:"syntheticStageOwner,omitempty"`
	ParentStageID        string              `json:"parentStageId,omitempty"`
	RequisiteStageRefIDs []string            `json:"requisiteStageRefIds,omitempty"`

	ScheduledTime *int64 `json:"scheduledTime,omitempty"`

	Context map[string]any `json:"context,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`

	Tasks []Task `json:"tasks,omitempty"`

	LastModified *LastModified `json:"lastModified,omitempty"`
}

// NewStage creates a stage of the given type with a generated id.
func NewStage(stageType, name string) *Stage {
	return &Stage{
		ID:     uuid.NewString(),
		Type:   stageType,
		Name:   name,
		Status: StatusNotStarted,
	}
}

// Execution returns the parent aggregate, or nil for a detached stage.
func (s *Stage) Execution() *Execution { return s.execution }

// SetExecution sets the parent back-reference without appending the
// stage to the execution's stage list. Used when reconstructing an
// aggregate from storage.
func (s *Stage) SetExecution(e *Execution) { s.execution = e }

// Synthetic reports whether the stage was inserted by machinery rather
// than authored. Synthetic stages declare a parent and a BEFORE/AFTER
// relation.
func (s *Stage) Synthetic() bool {
	return s.SyntheticStageOwner != "" && s.ParentStageID != ""
}

// Parent returns the parent stage, or nil if the stage is not synthetic
// or is detached.
func (s *Stage) Parent() *Stage {
	if s.execution == nil || s.ParentStageID == "" {
		return nil
	}
	return s.execution.StageByID(s.ParentStageID)
}

// Task is an opaque unit of work within a stage. The repository persists
// and restores tasks whole; only the runner interprets them.
type Task map[string]any

// LastModified is a small audit record of the most recent stage mutation.
type LastModified struct {
	User             string   `json:"user,omitempty"`
	AllowedAccounts  []string `json:"allowedAccounts,omitempty"`
	LastModifiedTime int64    `json:"lastModifiedTime,omitempty"`
}
