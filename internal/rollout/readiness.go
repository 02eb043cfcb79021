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
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/cloudnative-pg/machinery/pkg/log"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/backoff"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"
)

// ReadinessWaiter waits for a node to become Ready, tolerating nodes
// that are not registered yet
type ReadinessWaiter struct {
	nodes NodeClient

	// attemptTimeout bounds every readiness check
	attemptTimeout time.Duration

	// deadline bounds the whole wait. Zero means no deadline
	deadline time.Duration

	policy backoff.Policy
	timer  retry.Timer
}

// NewReadinessWaiter creates a new ReadinessWaiter
func NewReadinessWaiter(
	nodes NodeClient,
	attemptTimeout, deadline time.Duration,
	policy backoff.Policy,
) *ReadinessWaiter {
	return &ReadinessWaiter{
		nodes:          nodes,
		attemptTimeout: attemptTimeout,
		deadline:       deadline,
		policy:         policy,
		timer:          backoff.DefaultTimer,
	}
}

// Wait returns when the node is Ready. Any error but a transient one is
// returned immediately
func (waiter *ReadinessWaiter) Wait(ctx context.Context, nodeName string) error {
	contextLogger := log.FromContext(ctx).WithValues("nodeName", nodeName)

	waitCtx := ctx
	if waiter.deadline > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, waiter.deadline)
		defer cancel()
	}

	err := backoff.Do(waitCtx, waiter.policy, rollouterrors.IsTransient,
		func(ctx context.Context) error {
			return waiter.nodes.WaitForReady(ctx, nodeName, waiter.attemptTimeout)
		},
		retry.OnRetry(func(n uint, err error) {
			contextLogger.Info("Node not ready yet",
				"attempt", n+1,
				"error", err.Error())
		}),
		retry.WithTimer(waiter.timer),
	)
	switch {
	case err == nil:
		contextLogger.Info("Node is Ready")
		return nil
	case errors.Is(err, backoff.ErrAttemptsExhausted):
		return fmt.Errorf("%w: node %s after %d attempts: %v",
			rollouterrors.ErrReadinessTimeout, nodeName, waiter.policy.Attempts, errors.Unwrap(err))
	case ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: node %s not Ready within %s",
			rollouterrors.ErrReadinessTimeout, nodeName, waiter.deadline)
	default:
		return fmt.Errorf("while waiting for node %s to be Ready: %w", nodeName, err)
	}
}
