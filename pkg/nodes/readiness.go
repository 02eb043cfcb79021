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

// Package nodes implements the operations on the Kubernetes nodes
// needed to replace them: waiting for readiness and draining
package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"
)

const defaultPollInterval = 5 * time.Second

// Client manages the Kubernetes nodes
type Client struct {
	kubeClient client.Client
	clientset  kubernetes.Interface

	pollInterval time.Duration
}

// NewClient creates a new Client. The controller-runtime client is used
// to read the nodes, the clientset to drain them
func NewClient(kubeClient client.Client, clientset kubernetes.Interface) *Client {
	return &Client{
		kubeClient:   kubeClient,
		clientset:    clientset,
		pollInterval: defaultPollInterval,
	}
}

// IsNodeReady checks if the NodeReady condition of a node is true
func IsNodeReady(node *corev1.Node) bool {
	for _, condition := range node.Status.Conditions {
		if condition.Type == corev1.NodeReady {
			return condition.Status == corev1.ConditionTrue
		}
	}
	return false
}

// WaitForReady polls the node until it is Ready or the timeout expires.
// A node that doesn't exist gives rollouterrors.ErrNodeNotRegistered
func (c *Client) WaitForReady(ctx context.Context, nodeName string, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, c.pollInterval, timeout, true,
		func(ctx context.Context) (bool, error) {
			var node corev1.Node
			if err := c.kubeClient.Get(ctx, client.ObjectKey{Name: nodeName}, &node); err != nil {
				if apierrors.IsNotFound(err) {
					return false, fmt.Errorf("node %s: %w", nodeName, rollouterrors.ErrNodeNotRegistered)
				}
				return false, err
			}
			return IsNodeReady(&node), nil
		})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, rollouterrors.ErrNodeNotRegistered):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case wait.Interrupted(err):
		return fmt.Errorf("%w: node %s not Ready after %s",
			rollouterrors.ErrReadinessTimeout, nodeName, timeout)
	default:
		return fmt.Errorf("while getting node %s: %w", nodeName, err)
	}
}
