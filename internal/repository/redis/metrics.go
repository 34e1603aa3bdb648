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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "helmsman_repository_operation_duration_seconds",
			Help: "Duration of execution repository operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	indexRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helmsman_repository_index_repairs_total",
			Help: "Total stale index entries removed by streaming queries, by backend",
		},
		[]string{"backend"},
	)
)

// observeOperation records the duration and outcome of one repository
// operation. Meant to be deferred with a named error return:
//
//	defer func() { observeOperation("store", start, err) }()
func observeOperation(operation string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	operationDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

// recordIndexRepair increments the self-healing counter.
func recordIndexRepair(backend string) {
	indexRepairs.WithLabelValues(backend).Inc()
}
