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
	"fmt"
	"strings"

	"github.com/helmsman-io/helmsman/pkg/execution"
)

// Key layout.
//
//	pipeline:<id>, orchestration:<id>        hash holding the execution record
//	<type>:<id>:stageIndex                   list of stage ids in order
//	allJobs:<type>                           set of all ids of that type
//	<type>:app:<app>                         set of an application's ids
//	pipeline:executions:<pipelineConfigId>   sorted set, score = build time
//	correlation:<correlationId>              string pointer to an execution id
const (
	// missingConfigID keys pipelines stored without a configuration id.
	missingConfigID = "---"

	// legacyConfigField is a field written by old versions and deleted
	// on every full store.
	legacyConfigField = "config"

	// stageIndexField is the denormalized comma-joined stage order kept
	// in the execution hash. The list at stageIndexKey is authoritative.
	stageIndexField = "stageIndex"
)

// stageFieldSuffixes enumerates every namespaced field a stage persists.
// Order is deterministic so deletions cover the full set.
var stageFieldSuffixes = []string{
	"refId",
	"type",
	"name",
	"startTime",
	"endTime",
	"status",
	"syntheticStageOwner",
	"parentStageId",
	"requisiteStageRefIds",
	"scheduledTime",
	"context",
	"outputs",
	"tasks",
	"lastModified",
}

func typePrefix(t execution.Type) string {
	return strings.ToLower(string(t))
}

func executionKey(t execution.Type, id string) string {
	return fmt.Sprintf("%s:%s", typePrefix(t), id)
}

func stageIndexKey(executionKey string) string {
	return executionKey + ":stageIndex"
}

func allJobsKey(t execution.Type) string {
	return "allJobs:" + typePrefix(t)
}

func appKey(t execution.Type, application string) string {
	return fmt.Sprintf("%s:app:%s", typePrefix(t), application)
}

func pipelineConfigKey(pipelineConfigID string) string {
	if pipelineConfigID == "" {
		pipelineConfigID = missingConfigID
	}
	return "pipeline:executions:" + pipelineConfigID
}

func correlationKey(correlationID string) string {
	return "correlation:" + correlationID
}

func stageField(stageID, suffix string) string {
	return fmt.Sprintf("stage.%s.%s", stageID, suffix)
}

func stageFieldPrefix(stageID string) string {
	return "stage." + stageID + "."
}

// typeFromKey recovers the execution type from a fully-qualified key.
func typeFromKey(key string) (execution.Type, bool) {
	switch {
	case strings.HasPrefix(key, "pipeline:"):
		return execution.Pipeline, true
	case strings.HasPrefix(key, "orchestration:"):
		return execution.Orchestration, true
	}
	return "", false
}
