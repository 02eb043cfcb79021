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
	"time"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/backoff"
)

// The type of functions returning a moment in time
type timeFunc func() time.Time

// Pacer enforces a minimum amount of time between the end of an instance
// replacement and the start of the next one
type Pacer struct {
	// The amount of time we wait between replacements in
	// different node groups
	groupDelay time.Duration

	// The amount of time we wait between replacements in
	// the same node group
	instanceDelay time.Duration

	// This is used to get the current time. Mainly
	// used by the unit tests to inject a fake time
	timeProvider timeFunc
	sleep        backoff.SleepFunc

	// The following data is relative to the last
	// completed replacement
	lastGroup  string
	lastUpdate time.Time
}

// PaceResult tells whether a replacement can start
type PaceResult struct {
	// This is true when the instance can be replaced immediately
	Allowed bool

	// This is set with the amount of time we need to wait
	// before replacing the instance
	TimeToWait time.Duration
}

// NewPacer creates a new pacer with the passed delays
func NewPacer(groupDelay, instanceDelay time.Duration) *Pacer {
	return &Pacer{
		timeProvider:  time.Now,
		sleep:         backoff.ContextSleep,
		groupDelay:    groupDelay,
		instanceDelay: instanceDelay,
	}
}

// Coordinate checks whether a replacement in the passed group can start now
func (pacer *Pacer) Coordinate(group string) PaceResult {
	if pacer.lastUpdate.IsZero() {
		return PaceResult{Allowed: true}
	}

	delay := pacer.groupDelay
	if pacer.lastGroup == group {
		delay = pacer.instanceDelay
	}

	timeSinceLast := pacer.timeProvider().Sub(pacer.lastUpdate)
	if timeSinceLast >= delay {
		return PaceResult{Allowed: true}
	}

	return PaceResult{
		Allowed:    false,
		TimeToWait: delay - timeSinceLast,
	}
}

// Done records the end of a replacement in the passed group
func (pacer *Pacer) Done(group string) {
	pacer.lastGroup = group
	pacer.lastUpdate = pacer.timeProvider()
}

// Wait blocks until a replacement in the passed group is allowed
func (pacer *Pacer) Wait(ctx context.Context, group string) error {
	for {
		result := pacer.Coordinate(group)
		if result.Allowed {
			return nil
		}
		if err := pacer.sleep(ctx, result.TimeToWait); err != nil {
			return err
		}
	}
}
