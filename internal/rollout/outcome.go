/*
Copyright © contributors to CloudNativePG, established as
CloudNativePG a Series of LF Projects, LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

package rollout

import (
	"time"
)

// GroupStatus is the result of the rollout of a node group
type GroupStatus string

const (
	// StatusUpToDate is used when the node group had no stale instance
	StatusUpToDate GroupStatus = "UpToDate"

	// StatusReplaced is used when every stale instance has been replaced
	StatusReplaced GroupStatus = "Replaced"

	// StatusFailed is used when the rollout of the node group was aborted
	StatusFailed GroupStatus = "Failed"
)

// GroupOutcome is the outcome of the rollout of a node group
type GroupOutcome struct {
	Group    string      `json:"group"`
	Stale    int         `json:"stale"`
	Replaced int         `json:"replaced"`
	Status   GroupStatus `json:"status"`

	// Err is the error that aborted the rollout
	Err error `json:"-"`

	// Error is the message of Err, when set
	Error string `json:"error,omitempty"`
}

// RunReport is the outcome of a run
type RunReport struct {
	ClusterName string         `json:"clusterName"`
	DryRun      bool           `json:"dryRun"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt,omitempty"`
	Groups      []GroupOutcome `json:"groups"`
}

// Failed returns the outcomes of the failed node groups
func (report *RunReport) Failed() []GroupOutcome {
	var result []GroupOutcome
	for _, outcome := range report.Groups {
		if outcome.Status == StatusFailed {
			result = append(result, outcome)
		}
	}
	return result
}

// HasFailures is true when at least a node group failed
func (report *RunReport) HasFailures() bool {
	return len(report.Failed()) > 0
}

// ReplacedInstances is the number of instances replaced in every node group
func (report *RunReport) ReplacedInstances() int {
	total := 0
	for _, outcome := range report.Groups {
		total += outcome.Replaced
	}
	return total
}
