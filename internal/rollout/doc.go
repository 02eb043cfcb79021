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

/*
Package rollout implements the rolling replacement of the stale instances
of the node groups backing a Kubernetes cluster.

For every node group the replacement of a stale instance goes through
these steps, one instance at a time:

 1. the desired capacity of the node group is increased by one
 2. the new instance is looked up among the most recently launched ones
 3. the node backed by the new instance is waited to become Ready
 4. the stale node is drained
 5. the stale instance is terminated, decrementing the desired capacity

The cluster-autoscaler is kept away from the node group while this
happens, and is restored however the rollout of the group ends.
*/
package rollout

import (
	"context"
	"time"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodegroup"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodes"
)

// ControlPlane is the cloud control plane managing the node groups
type ControlPlane interface {
	// DescribeGroup gets a snapshot of a node group. It returns
	// rollouterrors.ErrNotFound when the group doesn't exist
	DescribeGroup(ctx context.Context, name string) (*nodegroup.NodeGroup, error)

	// SetDesiredCapacity sets the desired capacity of a node group
	SetDesiredCapacity(ctx context.Context, name string, capacity int32) error

	// DescribeLaunchTemplate resolves the versions of a launch template
	DescribeLaunchTemplate(ctx context.Context, ref nodegroup.LaunchTemplateRef) (*nodegroup.LaunchTemplate, error)

	// DescribeInstances gets the details of the passed instances
	DescribeInstances(ctx context.Context, ids []string) ([]nodegroup.Instance, error)

	// TerminateInstance terminates an instance of a node group, optionally
	// decrementing the desired capacity of its group
	TerminateInstance(ctx context.Context, instanceID string, decrementCapacity bool) error

	// SetTag creates or updates a tag of a node group
	SetTag(ctx context.Context, group, key, value string) error

	// RemoveTag removes a tag from a node group
	RemoveTag(ctx context.Context, group, key string) error
}

// GroupDiscoverer finds the node groups belonging to a cluster
type GroupDiscoverer interface {
	DiscoverGroups(ctx context.Context, clusterName string) ([]string, error)
}

// NodeClient is the orchestration API managing the nodes
type NodeClient interface {
	// WaitForReady waits for the node to be Ready. It returns
	// rollouterrors.ErrNodeNotRegistered when the node doesn't exist
	WaitForReady(ctx context.Context, nodeName string, timeout time.Duration) error

	// Drain evicts the workloads running on a node, returning a textual
	// summary of what was done
	Drain(ctx context.Context, nodeName string, options nodes.DrainOptions) (string, error)
}
