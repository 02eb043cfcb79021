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
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/cloudnative-pg/machinery/pkg/log"
)

const (
	defaultReleaseTimeout  = 2 * time.Minute
	defaultRestoreAttempts = 5
	defaultRestoreDelay    = time.Second
)

// AutoscalerGuard keeps the cluster-autoscaler away from a node group
// by removing its marker tag, and puts it back afterwards
type AutoscalerGuard struct {
	controlPlane ControlPlane
	tag          string
	dryRun       bool

	releaseTimeout  time.Duration
	restoreAttempts uint
	restoreDelay    time.Duration
}

// NewAutoscalerGuard creates a new AutoscalerGuard for the passed marker tag
func NewAutoscalerGuard(controlPlane ControlPlane, tag string, dryRun bool) *AutoscalerGuard {
	return &AutoscalerGuard{
		controlPlane:    controlPlane,
		tag:             tag,
		dryRun:          dryRun,
		releaseTimeout:  defaultReleaseTimeout,
		restoreAttempts: defaultRestoreAttempts,
		restoreDelay:    defaultRestoreDelay,
	}
}

// GuardScope is the handle of an acquired guard. It must be released
// exactly once, and further releases are no-ops
type GuardScope struct {
	guard *AutoscalerGuard
	group string

	// removed is true when this run removed the marker tag
	removed       bool
	originalValue string

	once       sync.Once
	releaseErr error
}

// Disabled is true when this scope removed the marker tag
func (scope *GuardScope) Disabled() bool {
	return scope.removed
}

// Acquire disables the autoscaler for the group if it is enabled
func (guard *AutoscalerGuard) Acquire(ctx context.Context, groupName string) (*GuardScope, error) {
	contextLogger := log.FromContext(ctx).WithValues("tag", guard.tag)

	group, err := guard.controlPlane.DescribeGroup(ctx, groupName)
	if err != nil {
		return nil, fmt.Errorf("while describing node group %s: %w", groupName, err)
	}

	scope := &GuardScope{guard: guard, group: groupName}
	value, enabled := group.Tag(guard.tag)
	switch {
	case !enabled:
		contextLogger.Debug("Autoscaler not enabled for the node group")
	case guard.dryRun:
		contextLogger.Info("Dry run: would suspend the autoscaler for the node group")
	default:
		contextLogger.Info("Suspending the autoscaler for the node group")
		if err := guard.controlPlane.RemoveTag(ctx, groupName, guard.tag); err != nil {
			return nil, fmt.Errorf("while suspending the autoscaler for node group %s: %w", groupName, err)
		}
		scope.removed = true
		scope.originalValue = value
	}

	return scope, nil
}

// Release restores the marker tag removed by Acquire. It runs even if
// the passed context has been cancelled
func (scope *GuardScope) Release(ctx context.Context) error {
	scope.once.Do(func() {
		scope.releaseErr = scope.restore(ctx)
	})
	return scope.releaseErr
}

func (scope *GuardScope) restore(ctx context.Context) error {
	if !scope.removed {
		return nil
	}

	guard := scope.guard
	contextLogger := log.FromContext(ctx).WithValues("tag", guard.tag)

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), guard.releaseTimeout)
	defer cancel()

	contextLogger.Info("Restoring the autoscaler for the node group")
	err := retry.New(
		retry.Attempts(guard.restoreAttempts),
		retry.Delay(guard.restoreDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(releaseCtx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			contextLogger.Warning("Retrying the restoration of the autoscaler",
				"attempt", n+1,
				"error", err.Error())
		}),
	).Do(
		func() error {
			return guard.controlPlane.SetTag(releaseCtx, scope.group, guard.tag, scope.originalValue)
		},
	)
	if err != nil {
		return fmt.Errorf("while restoring the autoscaler for node group %s: %w", scope.group, err)
	}
	return nil
}

// Do runs fn with the autoscaler suspended for the group, releasing the
// guard however fn ends
func (guard *AutoscalerGuard) Do(ctx context.Context, groupName string, fn func(ctx context.Context) error) (err error) {
	scope, err := guard.Acquire(ctx, groupName)
	if err != nil {
		return err
	}

	defer func() {
		releaseErr := scope.Release(ctx)
		if releaseErr == nil {
			return
		}
		if err == nil {
			err = releaseErr
			return
		}
		log.FromContext(ctx).Error(releaseErr, "Cannot restore the autoscaler for the node group",
			"critical", true)
	}()

	return fn(ctx)
}
