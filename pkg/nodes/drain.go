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

package nodes

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/cloudnative-pg/machinery/pkg/log"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	cmdutil "k8s.io/kubectl/pkg/cmd/util"
	"k8s.io/kubectl/pkg/drain"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"
)

const (
	cordonRetryAttempts = 5
	cordonRetryDelay    = 500 * time.Millisecond
)

// DrainOptions are the options of a drain
type DrainOptions struct {
	// Timeout bounds the eviction of the pods. Zero means no timeout
	Timeout time.Duration

	// DryRun submits every request in server-side dry-run mode
	DryRun bool
}

// Drain cordons the node and evicts its pods, ignoring the ones managed
// by DaemonSets and deleting emptyDir data. It returns a summary of what
// has been done. A node that doesn't exist anymore has nothing to drain
func (c *Client) Drain(ctx context.Context, nodeName string, options DrainOptions) (string, error) {
	contextLogger := log.FromContext(ctx)

	var summary strings.Builder
	var errOut bytes.Buffer
	helper := &drain.Helper{
		Ctx:                 ctx,
		Client:              c.clientset,
		Force:               true,
		IgnoreAllDaemonSets: true,
		DeleteEmptyDirData:  true,
		GracePeriodSeconds:  -1,
		Timeout:             options.Timeout,
		Out:                 &summary,
		ErrOut:              &errOut,
		OnPodDeletionOrEvictionFinished: func(pod *corev1.Pod, usingEviction bool, err error) {
			action := "deleted"
			if usingEviction {
				action = "evicted"
			}
			if err != nil {
				_, _ = fmt.Fprintf(&summary, "pod %s/%s not %s: %v\n", pod.Namespace, pod.Name, action, err)
				return
			}
			_, _ = fmt.Fprintf(&summary, "pod %s/%s %s\n", pod.Namespace, pod.Name, action)
		},
	}
	if options.DryRun {
		helper.DryRunStrategy = cmdutil.DryRunServer
	}

	node, err := c.clientset.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		contextLogger.Warning("Node not found, nothing to drain", "nodeName", nodeName)
		return fmt.Sprintf("node %s not found, nothing to drain", nodeName), nil
	}
	if err != nil {
		return "", &rollouterrors.DrainFailedError{Node: nodeName, Err: err}
	}

	if err := c.cordon(ctx, helper, node); err != nil {
		return summary.String(), &rollouterrors.DrainFailedError{Node: nodeName, Err: err}
	}
	_, _ = fmt.Fprintf(&summary, "node %s cordoned\n", nodeName)

	if err := drain.RunNodeDrain(helper, nodeName); err != nil {
		return summarize(&summary, &errOut, options.DryRun), &rollouterrors.DrainFailedError{Node: nodeName, Err: err}
	}
	_, _ = fmt.Fprintf(&summary, "node %s drained\n", nodeName)

	return summarize(&summary, &errOut, options.DryRun), nil
}

// cordon marks the node as unschedulable, retrying on conflicts
func (c *Client) cordon(ctx context.Context, helper *drain.Helper, node *corev1.Node) error {
	contextLogger := log.FromContext(ctx)

	return retry.New(
		retry.Attempts(cordonRetryAttempts),
		retry.Delay(cordonRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			contextLogger.Info("Retrying cordon",
				"nodeName", node.Name,
				"attempt", n+1,
				"error", err.Error(),
			)
		}),
	).Do(
		func() error {
			err := drain.RunCordonOrUncordon(helper, node, true)
			if err == nil {
				return nil
			}
			if !apierrors.IsConflict(err) {
				return retry.Unrecoverable(err)
			}

			refreshed, getErr := c.clientset.CoreV1().Nodes().Get(ctx, node.Name, metav1.GetOptions{})
			if getErr != nil {
				return retry.Unrecoverable(getErr)
			}
			node = refreshed
			return err
		},
	)
}

func summarize(summary *strings.Builder, errOut *bytes.Buffer, dryRun bool) string {
	result := summary.String()
	if errOut.Len() > 0 {
		result += errOut.String()
	}
	if dryRun {
		result += "(server dry run)\n"
	}
	return strings.TrimSuffix(result, "\n")
}
