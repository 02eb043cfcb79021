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
	"fmt"

	"github.com/cloudnative-pg/machinery/pkg/log"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodegroup"
)

// CapacityController changes the size of the node groups
type CapacityController struct {
	controlPlane ControlPlane
	dryRun       bool
	metrics      *Metrics
}

// NewCapacityController creates a new CapacityController
func NewCapacityController(controlPlane ControlPlane, dryRun bool, metrics *Metrics) *CapacityController {
	return &CapacityController{
		controlPlane: controlPlane,
		dryRun:       dryRun,
		metrics:      metrics,
	}
}

// ScaleOut adds one to the desired capacity of a node group. The
// read-then-write sequence is not atomic: concurrent changes made by
// other actors can be lost
func (controller *CapacityController) ScaleOut(ctx context.Context, groupName string) error {
	contextLogger := log.FromContext(ctx)

	group, err := controller.controlPlane.DescribeGroup(ctx, groupName)
	if err != nil {
		return fmt.Errorf("while describing node group %s: %w", groupName, err)
	}

	desired := group.DesiredCapacity + 1
	if desired > group.MaxSize {
		contextLogger.Warning("Scaling out beyond the maximum size of the node group",
			"desiredCapacity", desired, "maxSize", group.MaxSize)
	}

	if controller.dryRun {
		contextLogger.Info("Dry run: would scale out the node group",
			"currentCapacity", group.DesiredCapacity, "desiredCapacity", desired)
		return nil
	}

	contextLogger.Info("Scaling out the node group",
		"currentCapacity", group.DesiredCapacity, "desiredCapacity", desired)
	if err := controller.controlPlane.SetDesiredCapacity(ctx, groupName, desired); err != nil {
		return fmt.Errorf("while setting the desired capacity of node group %s to %d: %w", groupName, desired, err)
	}
	controller.metrics.ScaleOuts.Inc()
	return nil
}

// Terminate terminates an instance, decrementing the desired capacity of
// its node group
func (controller *CapacityController) Terminate(ctx context.Context, instanceID string) error {
	contextLogger := log.FromContext(ctx).WithValues("instanceID", instanceID)

	if controller.dryRun {
		contextLogger.Info("Dry run: would terminate the instance")
		return nil
	}

	contextLogger.Info("Terminating the instance")
	if err := controller.controlPlane.TerminateInstance(ctx, instanceID, true); err != nil {
		return fmt.Errorf("while terminating instance %s: %w", instanceID, err)
	}
	controller.metrics.Terminations.Inc()
	return nil
}

// LiveInstances counts the members of a node group that are pending or running
func (controller *CapacityController) LiveInstances(ctx context.Context, groupName string) (int, error) {
	group, err := controller.controlPlane.DescribeGroup(ctx, groupName)
	if err != nil {
		return 0, fmt.Errorf("while describing node group %s: %w", groupName, err)
	}
	if len(group.Instances) == 0 {
		return 0, nil
	}

	instances, err := controller.controlPlane.DescribeInstances(ctx, group.InstanceIDs())
	if err != nil {
		return 0, fmt.Errorf("while describing the instances of node group %s: %w", groupName, err)
	}

	return len(nodegroup.FilterInstances(instances, nodegroup.Instance.IsLive)), nil
}
