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
	"context"
	"errors"
	"time"

	"github.com/cloudnative-pg/machinery/pkg/log"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodes"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"
)

// DrainCoordinator evicts the workloads from the nodes being replaced
type DrainCoordinator struct {
	nodes   NodeClient
	timeout time.Duration
	dryRun  bool
	metrics *Metrics
}

// NewDrainCoordinator creates a new DrainCoordinator
func NewDrainCoordinator(nodeClient NodeClient, timeout time.Duration, dryRun bool, metrics *Metrics) *DrainCoordinator {
	return &DrainCoordinator{
		nodes:   nodeClient,
		timeout: timeout,
		dryRun:  dryRun,
		metrics: metrics,
	}
}

// Drain cordons the node and evicts its workloads, DaemonSet pods
// excluded. In dry-run mode the requests are validated by the API server
// and not persisted. Failures are returned as *rollouterrors.DrainFailedError
func (coordinator *DrainCoordinator) Drain(ctx context.Context, nodeName string) (string, error) {
	contextLogger := log.FromContext(ctx).WithValues("nodeName", nodeName, "dryRun", coordinator.dryRun)
	contextLogger.Info("Draining node", "timeout", coordinator.timeout)

	summary, err := coordinator.nodes.Drain(ctx, nodeName, nodes.DrainOptions{
		Timeout: coordinator.timeout,
		DryRun:  coordinator.dryRun,
	})
	if err != nil {
		coordinator.metrics.Drains.WithLabelValues("failed").Inc()
		var drainErr *rollouterrors.DrainFailedError
		if errors.As(err, &drainErr) {
			return summary, err
		}
		return summary, &rollouterrors.DrainFailedError{Node: nodeName, Err: err}
	}

	coordinator.metrics.Drains.WithLabelValues("succeeded").Inc()
	contextLogger.Debug("Node drained", "summary", summary)
	return summary, nil
}
