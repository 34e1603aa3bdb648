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

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPipelineDefaults(t *testing.T) {
	e := NewPipeline("demo")

	assert.Equal(t, Pipeline, e.Type)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "demo", e.Application)
	assert.Equal(t, StatusNotStarted, e.Status)
	assert.Equal(t, DefaultEngine, e.Engine)
	assert.NotZero(t, e.BuildTime)
}

func TestAttachStageSetsBackReference(t *testing.T) {
	e := NewOrchestration("demo")
	s := NewStage("wait", "wait")

	assert.Nil(t, s.Execution())
	e.AttachStage(s)

	assert.Same(t, e, s.Execution())
	require.Len(t, e.Stages, 1)
	assert.Equal(t, []string{s.ID}, e.StageIDs())
}

func TestStageLookups(t *testing.T) {
	e := NewPipeline("demo")
	a := NewStage("wait", "a")
	a.ID = "A"
	a.RefID = "1"
	b := NewStage("deploy", "b")
	b.ID = "B"
	b.RefID = "2"
	e.AttachStage(a)
	e.AttachStage(b)

	assert.Same(t, a, e.StageByID("A"))
	assert.Same(t, b, e.StageByRefID("2"))
	assert.Nil(t, e.StageByID("missing"))
	assert.Nil(t, e.StageByRefID("missing"))
}

func TestStageSynthetic(t *testing.T) {
	s := NewStage("wait", "wait")
	assert.False(t, s.Synthetic())

	s.SyntheticStageOwner = StageBefore
	assert.False(t, s.Synthetic(), "owner without parent is not synthetic")

	s.ParentStageID = "p"
	assert.True(t, s.Synthetic())
}

func TestStageParent(t *testing.T) {
	e := NewPipeline("demo")
	parent := NewStage("deploy", "deploy")
	parent.ID = "P"
	child := NewStage("wait", "wait")
	child.SyntheticStageOwner = StageBefore
	child.ParentStageID = "P"
	e.AttachStage(parent)
	e.AttachStage(child)

	assert.Same(t, parent, child.Parent())

	detached := NewStage("wait", "wait")
	detached.ParentStageID = "P"
	assert.Nil(t, detached.Parent())
}

func TestBackReferenceNotSerialized(t *testing.T) {
	e := NewPipeline("demo")
	s := NewStage("wait", "wait")
	e.AttachStage(s)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "execution")
}

func TestStatusComplete(t *testing.T) {
	complete := []Status{
		StatusSucceeded, StatusFailedContinue, StatusTerminal,
		StatusCanceled, StatusStopped, StatusSkipped,
	}
	for _, s := range complete {
		assert.True(t, s.Complete(), "%s should be complete", s)
	}

	active := []Status{
		StatusNotStarted, StatusRunning, StatusPaused,
		StatusSuspended, StatusRedirect, StatusBuffered,
	}
	for _, s := range active {
		assert.False(t, s.Complete(), "%s should not be complete", s)
	}
}

func TestStatusHalt(t *testing.T) {
	assert.True(t, StatusTerminal.Halt())
	assert.True(t, StatusCanceled.Halt())
	assert.True(t, StatusStopped.Halt())
	assert.False(t, StatusSucceeded.Halt())
	assert.False(t, StatusFailedContinue.Halt())
}

func TestTriggerCorrelationID(t *testing.T) {
	assert.Empty(t, Trigger(nil).CorrelationID())
	assert.Empty(t, Trigger{"type": "manual"}.CorrelationID())
	assert.Empty(t, Trigger{"correlationId": 42}.CorrelationID())
	assert.Equal(t, "c-1", Trigger{"correlationId": "c-1"}.CorrelationID())
}

func TestTriggerParentExecution(t *testing.T) {
	assert.Nil(t, Trigger(nil).ParentExecution())
	// An undecoded map is not a parent execution.
	assert.Nil(t, Trigger{"parentExecution": map[string]any{"id": "p"}}.ParentExecution())

	parent := NewPipeline("demo")
	trig := Trigger{"parentExecution": parent}
	assert.Same(t, parent, trig.ParentExecution())
}

func TestPausedDetails(t *testing.T) {
	var p *PausedDetails
	assert.False(t, p.IsPaused())
	assert.Zero(t, p.PausedDuration())

	p = &PausedDetails{PauseTime: 1000}
	assert.True(t, p.IsPaused())
	assert.Positive(t, p.PausedDuration())

	p.ResumeTime = 4000
	assert.False(t, p.IsPaused())
	assert.Equal(t, int64(3000), p.PausedDuration().Milliseconds())
}
