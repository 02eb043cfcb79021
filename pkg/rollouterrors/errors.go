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

// Package rollouterrors contains the error taxonomy shared by the
// rollout engine and the cloud and Kubernetes adapters
package rollouterrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a node group or an instance does not
	// exist in the control plane
	ErrNotFound = errors.New("not found")

	// ErrNoLaunchTemplate is returned when a node group is not backed by
	// a launch template, and staleness cannot be computed
	ErrNoLaunchTemplate = errors.New("node group has no launch template")

	// ErrNodeNotRegistered is returned when the node object doesn't exist
	// yet in the Kubernetes API. The instance is probably still booting
	ErrNodeNotRegistered = errors.New("node not registered")

	// ErrResolutionTimeout is returned when no replacement instance could
	// be found after the scale-out
	ErrResolutionTimeout = errors.New("timed out resolving the new instance")

	// ErrReadinessTimeout is returned when a node didn't become Ready
	// within the allowed time
	ErrReadinessTimeout = errors.New("timed out waiting for node readiness")

	// ErrConsistencyViolation is matched by every ConsistencyViolationError
	ErrConsistencyViolation = errors.New("consistency violation")

	// ErrDrainFailed is matched by every DrainFailedError
	ErrDrainFailed = errors.New("drain failed")
)

// IsTransient is true for the errors that are expected to go away
// if the operation is retried later
func IsTransient(err error) bool {
	return errors.Is(err, ErrNodeNotRegistered)
}

// ConsistencyViolationError is raised when the number of live instances
// in a node group did not grow after a scale-out
type ConsistencyViolationError struct {
	Group  string
	Before int
	After  int
}

func (e *ConsistencyViolationError) Error() string {
	return fmt.Sprintf(
		"%s: live instances in %s did not increase after scale-out (before=%d, after=%d)",
		ErrConsistencyViolation, e.Group, e.Before, e.After)
}

// Is makes errors.Is(err, ErrConsistencyViolation) work
func (e *ConsistencyViolationError) Is(target error) bool {
	return target == ErrConsistencyViolation
}

// DrainFailedError is raised when the workloads couldn't be evicted
// from a node, i.e. because of a timeout or a PodDisruptionBudget
type DrainFailedError struct {
	Node string
	Err  error
}

func (e *DrainFailedError) Error() string {
	return fmt.Sprintf("%s: node %s: %v", ErrDrainFailed, e.Node, e.Err)
}

// Is makes errors.Is(err, ErrDrainFailed) work
func (e *DrainFailedError) Is(target error) bool {
	return target == ErrDrainFailed
}

func (e *DrainFailedError) Unwrap() error {
	return e.Err
}
