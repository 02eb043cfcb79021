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
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusNamespace is the namespace used for all the metrics of a rollout
const PrometheusNamespace = "eks_node_rollout"

// Metrics are the metrics collected while rolling out node groups
type Metrics struct {
	ScaleOuts         prometheus.Counter
	Terminations      prometheus.Counter
	Drains            *prometheus.CounterVec
	GroupOutcomes     *prometheus.CounterVec
	ReplacedInstances *prometheus.CounterVec
	ReadinessDuration prometheus.Histogram
}

// NewMetrics creates the rollout metrics, registering them into the
// passed registerer if not nil
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	subsystem := "rollout"
	result := &Metrics{
		ScaleOuts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PrometheusNamespace,
			Subsystem: subsystem,
			Name:      "scale_outs_total",
			Help:      "Total number of scale-out requests issued to the node groups.",
		}),
		Terminations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: PrometheusNamespace,
			Subsystem: subsystem,
			Name:      "terminations_total",
			Help:      "Total number of stale instances terminated.",
		}),
		Drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: PrometheusNamespace,
			Subsystem: subsystem,
			Name:      "drains_total",
			Help:      "Total number of node drains, by result.",
		}, []string{"result"}),
		GroupOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: PrometheusNamespace,
			Subsystem: subsystem,
			Name:      "group_outcomes_total",
			Help:      "Total number of node groups processed, by outcome.",
		}, []string{"status"}),
		ReplacedInstances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: PrometheusNamespace,
			Subsystem: subsystem,
			Name:      "replaced_instances_total",
			Help:      "Total number of stale instances replaced, by node group.",
		}, []string{"group"}),
		ReadinessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: PrometheusNamespace,
			Subsystem: subsystem,
			Name:      "readiness_wait_seconds",
			Help:      "Time spent waiting for a replacement node to become Ready.",
			Buckets:   prometheus.ExponentialBuckets(15, 2, 8),
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			result.ScaleOuts,
			result.Terminations,
			result.Drains,
			result.GroupOutcomes,
			result.ReplacedInstances,
			result.ReadinessDuration,
		)
	}

	return result
}
