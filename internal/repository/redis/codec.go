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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/helmsman-io/helmsman/pkg/execution"
)

// The codec maps an execution aggregate onto a flat field-addressed hash
// plus an ordered stage-id list. Scalars are stored under fixed field
// names, numbers as decimal strings, and structured values as JSON
// blobs. Absent optional values are simply not emitted, so the literal
// string "null" is never persisted.

// encodeExecution flattens an execution into its hash fields. The
// returned map contains only present fields; the ordered stage ids come
// from e.StageIDs().
func encodeExecution(e *execution.Execution) (map[string]string, error) {
	m := map[string]string{
		"application":          e.Application,
		"status":               string(e.Status),
		"buildTime":            strconv.FormatInt(e.BuildTime, 10),
		"canceled":             strconv.FormatBool(e.Canceled),
		"limitConcurrent":      strconv.FormatBool(e.LimitConcurrent),
		"keepWaitingPipelines": strconv.FormatBool(e.KeepWaitingPipelines),
		stageIndexField:        strings.Join(e.StageIDs(), ","),
	}

	putString(m, "canceledBy", e.CanceledBy)
	putString(m, "cancellationReason", e.CancellationReason)
	putString(m, "executionEngine", e.Engine)
	putString(m, "origin", e.Origin)
	putInt(m, "startTime", e.StartTime)
	putInt(m, "endTime", e.EndTime)

	if err := putJSON(m, "authentication", e.Authentication, e.Authentication != nil); err != nil {
		return nil, err
	}
	if err := putJSON(m, "paused", e.Paused, e.Paused != nil); err != nil {
		return nil, err
	}
	if err := putJSON(m, "trigger", e.Trigger, e.Trigger != nil); err != nil {
		return nil, err
	}
	if err := putJSON(m, "context", e.Context, e.Context != nil); err != nil {
		return nil, err
	}

	switch e.Type {
	case execution.Pipeline:
		putString(m, "name", e.Name)
		putString(m, "pipelineConfigId", e.PipelineConfigID)
		if err := putJSON(m, "notifications", e.Notifications, e.Notifications != nil); err != nil {
			return nil, err
		}
		if err := putJSON(m, "initialConfig", e.InitialConfig, e.InitialConfig != nil); err != nil {
			return nil, err
		}
	case execution.Orchestration:
		putString(m, "description", e.Description)
	}

	for _, s := range e.Stages {
		fields, _, err := encodeStage(s)
		if err != nil {
			return nil, err
		}
		for k, v := range fields {
			m[k] = v
		}
	}

	return m, nil
}

// encodeStage flattens one stage into its namespaced fields. The second
// return value lists the fields whose value is absent, so incremental
// stage writes can delete them.
func encodeStage(s *execution.Stage) (map[string]string, []string, error) {
	fields := make(map[string]string)
	var absent []string

	put := func(suffix, value string, present bool) {
		if present {
			fields[stageField(s.ID, suffix)] = value
		} else {
			absent = append(absent, stageField(s.ID, suffix))
		}
	}

	put("refId", s.RefID, s.RefID != "")
	put("type", s.Type, s.Type != "")
	put("name", s.Name, s.Name != "")
	put("status", string(s.Status), s.Status != "")
	put("syntheticStageOwner", string(s.SyntheticStageOwner), s.SyntheticStageOwner != "")
	put("parentStageId", s.ParentStageID, s.ParentStageID != "")
	put("requisiteStageRefIds", strings.Join(s.RequisiteStageRefIDs, ","), len(s.RequisiteStageRefIDs) > 0)

	putOptInt := func(suffix string, v *int64) {
		if v != nil {
			put(suffix, strconv.FormatInt(*v, 10), true)
		} else {
			put(suffix, "", false)
		}
	}
	putOptInt("startTime", s.StartTime)
	putOptInt("endTime", s.EndTime)
	putOptInt("scheduledTime", s.ScheduledTime)

	putOptJSON := func(suffix string, v any, present bool) error {
		if !present {
			put(suffix, "", false)
			return nil
		}
		blob, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling stage %s %s: %w", s.ID, suffix, err)
		}
		put(suffix, string(blob), true)
		return nil
	}
	if err := putOptJSON("context", s.Context, s.Context != nil); err != nil {
		return nil, nil, err
	}
	if err := putOptJSON("outputs", s.Outputs, s.Outputs != nil); err != nil {
		return nil, nil, err
	}
	if err := putOptJSON("tasks", s.Tasks, s.Tasks != nil); err != nil {
		return nil, nil, err
	}
	if err := putOptJSON("lastModified", s.LastModified, s.LastModified != nil); err != nil {
		return nil, nil, err
	}

	return fields, absent, nil
}

// decodeExecution reconstructs an execution from its hash and the
// ordered stage-id list. An empty list falls back to the denormalized
// stageIndex field written by legacy records. Decoding is best-effort:
// missing stage fields are tolerated, unknown engine tags default.
func decodeExecution(t execution.Type, id string, hash map[string]string, stageIDs []string) (*execution.Execution, error) {
	e := &execution.Execution{
		Type:                 t,
		ID:                   id,
		Application:          hash["application"],
		Status:               execution.Status(hash["status"]),
		Canceled:             hash["canceled"] == "true",
		CanceledBy:           hash["canceledBy"],
		CancellationReason:   hash["cancellationReason"],
		LimitConcurrent:      hash["limitConcurrent"] == "true",
		KeepWaitingPipelines: hash["keepWaitingPipelines"] == "true",
		Engine:               hash["executionEngine"],
		Origin:               hash["origin"],
	}
	if e.Engine == "" {
		e.Engine = execution.DefaultEngine
	}
	if v, err := strconv.ParseInt(hash["buildTime"], 10, 64); err == nil {
		e.BuildTime = v
	}
	e.StartTime = parseOptInt(hash, "startTime")
	e.EndTime = parseOptInt(hash, "endTime")

	if raw := hash["authentication"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Authentication); err != nil {
			return nil, fmt.Errorf("decoding authentication for %s: %w", id, err)
		}
	}
	if raw := hash["paused"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Paused); err != nil {
			return nil, fmt.Errorf("decoding paused details for %s: %w", id, err)
		}
	}
	if raw := hash["trigger"]; raw != "" {
		trigger, err := decodeTrigger(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding trigger for %s: %w", id, err)
		}
		e.Trigger = trigger
	}
	if raw := hash["context"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.Context); err != nil {
			return nil, fmt.Errorf("decoding context for %s: %w", id, err)
		}
	}

	switch t {
	case execution.Pipeline:
		e.Name = hash["name"]
		e.PipelineConfigID = hash["pipelineConfigId"]
		if raw := hash["notifications"]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &e.Notifications); err != nil {
				return nil, fmt.Errorf("decoding notifications for %s: %w", id, err)
			}
		}
		if raw := hash["initialConfig"]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &e.InitialConfig); err != nil {
				return nil, fmt.Errorf("decoding initialConfig for %s: %w", id, err)
			}
		}
	case execution.Orchestration:
		e.Description = hash["description"]
	}

	if len(stageIDs) == 0 {
		stageIDs = splitIndex(hash[stageIndexField])
	}
	for _, stageID := range stageIDs {
		s, ok, err := decodeStage(stageID, hash)
		if err != nil {
			return nil, fmt.Errorf("decoding stage %s of %s: %w", stageID, id, err)
		}
		if !ok {
			continue
		}
		e.AttachStage(s)
	}

	return e, nil
}

// decodeStage rebuilds one stage from the hash. Returns ok=false when
// the hash holds no fields at all for the id, which happens when an
// index entry outlives a concurrent stage removal.
func decodeStage(id string, hash map[string]string) (*execution.Stage, bool, error) {
	found := false
	for _, suffix := range stageFieldSuffixes {
		if _, ok := hash[stageField(id, suffix)]; ok {
			found = true
			break
		}
	}
	if !found {
		return nil, false, nil
	}

	s := &execution.Stage{
		ID:                  id,
		RefID:               hash[stageField(id, "refId")],
		Type:                hash[stageField(id, "type")],
		Name:                hash[stageField(id, "name")],
		Status:              execution.Status(hash[stageField(id, "status")]),
		SyntheticStageOwner: execution.SyntheticStageOwner(hash[stageField(id, "syntheticStageOwner")]),
		ParentStageID:       hash[stageField(id, "parentStageId")],
	}
	if raw := hash[stageField(id, "requisiteStageRefIds")]; raw != "" {
		s.RequisiteStageRefIDs = strings.Split(raw, ",")
	}
	s.StartTime = parseOptInt(hash, stageField(id, "startTime"))
	s.EndTime = parseOptInt(hash, stageField(id, "endTime"))
	s.ScheduledTime = parseOptInt(hash, stageField(id, "scheduledTime"))

	unmarshal := func(suffix string, target any) error {
		raw := hash[stageField(id, suffix)]
		if raw == "" {
			return nil
		}
		return json.Unmarshal([]byte(raw), target)
	}
	if err := unmarshal("context", &s.Context); err != nil {
		return nil, false, err
	}
	if err := unmarshal("outputs", &s.Outputs); err != nil {
		return nil, false, err
	}
	if err := unmarshal("tasks", &s.Tasks); err != nil {
		return nil, false, err
	}
	if err := unmarshal("lastModified", &s.LastModified); err != nil {
		return nil, false, err
	}

	return s, true, nil
}

// decodeTrigger parses the trigger blob and reifies a nested
// parentExecution, recursively.
func decodeTrigger(raw string) (execution.Trigger, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	reifyParentExecution(m)
	return execution.Trigger(m), nil
}

// reifyParentExecution replaces a raw parentExecution map with a typed
// *execution.Execution. A blob that does not fit the execution shape is
// left as the raw map.
func reifyParentExecution(trigger map[string]any) {
	raw, ok := trigger["parentExecution"].(map[string]any)
	if !ok {
		return
	}
	blob, err := json.Marshal(raw)
	if err != nil {
		return
	}
	var parent execution.Execution
	if err := json.Unmarshal(blob, &parent); err != nil {
		return
	}
	if parent.Engine == "" {
		parent.Engine = execution.DefaultEngine
	}
	for _, s := range parent.Stages {
		s.SetExecution(&parent)
	}
	if parent.Trigger != nil {
		reifyParentExecution(parent.Trigger)
	}
	trigger["parentExecution"] = &parent
}

func putString(m map[string]string, field, value string) {
	if value != "" {
		m[field] = value
	}
}

func putInt(m map[string]string, field string, value *int64) {
	if value != nil {
		m[field] = strconv.FormatInt(*value, 10)
	}
}

func putJSON(m map[string]string, field string, value any, present bool) error {
	if !present {
		return nil
	}
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", field, err)
	}
	m[field] = string(blob)
	return nil
}

func parseOptInt(hash map[string]string, field string) *int64 {
	raw, ok := hash[field]
	if !ok || raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func splitIndex(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	ids := parts[:0]
	for _, p := range parts {
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
