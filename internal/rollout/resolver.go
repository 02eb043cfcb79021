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
	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodegroup"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"
)

var errNoCandidate = errors.New("no candidate instance")

// launchTimeSkew is how much earlier than the reference time a new
// instance may appear to be launched. Launch times have a one second
// precision and come from a clock other than ours
const launchTimeSkew = 2 * time.Second

// InstanceResolver looks for the instance created by a scale-out
type InstanceResolver struct {
	controlPlane ControlPlane
	dryRun       bool
	policy       backoff.Policy
	timer        retry.Timer
}

// NewInstanceResolver creates a new InstanceResolver
func NewInstanceResolver(controlPlane ControlPlane, dryRun bool, policy backoff.Policy) *InstanceResolver {
	return &InstanceResolver{
		controlPlane: controlPlane,
		dryRun:       dryRun,
		policy:       policy,
		timer:        backoff.DefaultTimer,
	}
}

// Resolve returns the live instance of the group launched last, after the
// reference time. In dry-run mode no instance is really created, and the
// time filter is skipped.
//
// There's no guarantee the result is the instance created by our
// scale-out, as another actor could have launched a newer one: callers
// need to corroborate it
func (resolver *InstanceResolver) Resolve(
	ctx context.Context,
	groupName string,
	reference time.Time,
) (nodegroup.Instance, error) {
	contextLogger := log.FromContext(ctx)

	var result nodegroup.Instance
	err := backoff.Do(ctx, resolver.policy,
		func(err error) bool {
			return errors.Is(err, errNoCandidate)
		},
		func(ctx context.Context) error {
			candidate, err := resolver.findCandidate(ctx, groupName, reference)
			if err != nil {
				return err
			}
			result = candidate
			return nil
		},
		retry.OnRetry(func(n uint, err error) {
			contextLogger.Debug("New instance not found yet",
				"attempt", n+1,
				"error", err.Error())
		}),
		retry.WithTimer(resolver.timer),
	)
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, backoff.ErrAttemptsExhausted):
		return nodegroup.Instance{}, fmt.Errorf("%w: node group %s after %d attempts",
			rollouterrors.ErrResolutionTimeout, groupName, resolver.policy.Attempts)
	default:
		return nodegroup.Instance{}, err
	}
}

func (resolver *InstanceResolver) findCandidate(
	ctx context.Context,
	groupName string,
	reference time.Time,
) (nodegroup.Instance, error) {
	group, err := resolver.controlPlane.DescribeGroup(ctx, groupName)
	if err != nil {
		return nodegroup.Instance{}, fmt.Errorf("while describing node group %s: %w", groupName, err)
	}
	if len(group.Instances) == 0 {
		return nodegroup.Instance{}, errNoCandidate
	}

	instances, err := resolver.controlPlane.DescribeInstances(ctx, group.InstanceIDs())
	if err != nil {
		return nodegroup.Instance{}, fmt.Errorf("while describing the instances of node group %s: %w", groupName, err)
	}

	cutoff := reference.Truncate(time.Second).Add(-launchTimeSkew)
	var (
		found  bool
		newest nodegroup.Instance
	)
	for _, instance := range instances {
		if !instance.IsLive() || instance.NodeName == "" {
			continue
		}
		if !resolver.dryRun && instance.LaunchTime.Before(cutoff) {
			continue
		}
		if !found || instance.LaunchTime.After(newest.LaunchTime) {
			newest = instance
			found = true
		}
	}

	if !found {
		return nodegroup.Instance{}, errNoCandidate
	}
	return newest, nil
}
