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

// Package nodegroup contains the typed records describing an autoscaled
// node group and its instances, as read from the cloud control plane
package nodegroup

import (
	"strconv"
	"time"
)

// LifecycleState is the lifecycle state of an instance
type LifecycleState string

const (
	// StatePending is the state of an instance that is booting
	StatePending LifecycleState = "pending"

	// StateRunning is the state of a running instance
	StateRunning LifecycleState = "running"

	// StateTerminating is the state of an instance being shut down
	StateTerminating LifecycleState = "terminating"

	// StateTerminated is the state of an instance that is gone
	StateTerminated LifecycleState = "terminated"

	// StateUnknown is used when the control plane reports a state we
	// don't know about
	StateUnknown LifecycleState = "unknown"
)

const (
	// VersionLatest is the floating alias of the latest launch template version
	VersionLatest = "$Latest"

	// VersionDefault is the floating alias of the default launch template version
	VersionDefault = "$Default"
)

// LaunchTemplateRef is the reference to a launch template stored
// in a node group or attached to an instance
type LaunchTemplateRef struct {
	// ID is the launch template ID
	ID string `json:"id,omitempty"`

	// Name is the launch template name
	Name string `json:"name,omitempty"`

	// Version is either a version number or one of the
	// floating aliases $Latest and $Default
	Version string `json:"version,omitempty"`
}

// IsEmpty is true when the reference doesn't point to any template
func (ref LaunchTemplateRef) IsEmpty() bool {
	return ref.ID == "" && ref.Name == ""
}

// IsFloating is true when the version is an alias whose value can
// change over time
func (ref LaunchTemplateRef) IsFloating() bool {
	return ref.Version == "" || ref.Version == VersionLatest || ref.Version == VersionDefault
}

// LaunchTemplate is a launch template with its resolved versions
type LaunchTemplate struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	LatestVersion  int64  `json:"latestVersion"`
	DefaultVersion int64  `json:"defaultVersion"`
}

// PinVersion resolves the version referenced by ref to a concrete number
func (template LaunchTemplate) PinVersion(ref LaunchTemplateRef) (int64, error) {
	switch ref.Version {
	case "", VersionLatest:
		return template.LatestVersion, nil
	case VersionDefault:
		return template.DefaultVersion, nil
	default:
		return strconv.ParseInt(ref.Version, 10, 64)
	}
}

// Instance is a compute instance member of a node group
type Instance struct {
	// ID is the instance ID
	ID string `json:"id"`

	// NodeName is the name of the Kubernetes node backed by this instance
	NodeName string `json:"nodeName,omitempty"`

	// LaunchTime is when the instance was launched
	LaunchTime time.Time `json:"launchTime,omitempty"`

	// LaunchTemplate is the launch template the instance was created from
	LaunchTemplate LaunchTemplateRef `json:"launchTemplate"`

	// State is the lifecycle state of the instance
	State LifecycleState `json:"state"`
}

// IsLive is true when the instance is pending or running
func (instance Instance) IsLive() bool {
	return instance.State == StatePending || instance.State == StateRunning
}

// NodeGroup is a read snapshot of an autoscaled node group
type NodeGroup struct {
	// Name identifies the node group
	Name string `json:"name"`

	// DesiredCapacity is the number of instances the group should have
	DesiredCapacity int32 `json:"desiredCapacity"`

	// MinSize is the minimum size of the group
	MinSize int32 `json:"minSize"`

	// MaxSize is the maximum size of the group
	MaxSize int32 `json:"maxSize"`

	// LaunchTemplate is the launch template new instances are created from
	LaunchTemplate LaunchTemplateRef `json:"launchTemplate"`

	// Instances are the members of the group, in the control plane
	// listing order
	Instances []Instance `json:"instances,omitempty"`

	// Tags are the tags of the group
	Tags map[string]string `json:"tags,omitempty"`
}

// InstanceIDs returns the IDs of the members of the group
func (group *NodeGroup) InstanceIDs() []string {
	result := make([]string, 0, len(group.Instances))
	for _, instance := range group.Instances {
		result = append(result, instance.ID)
	}
	return result
}

// Tag gets the value of a tag, telling if the tag is set at all
func (group *NodeGroup) Tag(key string) (string, bool) {
	value, ok := group.Tags[key]
	return value, ok
}

// FilterInstances returns the instances matching the passed predicate,
// preserving their order
func FilterInstances(instances []Instance, predicate func(Instance) bool) []Instance {
	result := make([]Instance, 0, len(instances))
	for _, instance := range instances {
		if predicate(instance) {
			result = append(result, instance)
		}
	}
	return result
}
