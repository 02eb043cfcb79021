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
	"strconv"

	"github.com/cloudnative-pg/machinery/pkg/log"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodegroup"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"
)

// StalenessDetector finds the instances of a node group that were not
// launched from the launch template version the group is pinned to
type StalenessDetector struct {
	controlPlane ControlPlane
}

// NewStalenessDetector creates a new StalenessDetector
func NewStalenessDetector(controlPlane ControlPlane) *StalenessDetector {
	return &StalenessDetector{controlPlane: controlPlane}
}

// Detect returns the stale instances of a node group, in the order the
// control plane lists them. An up-to-date group gives an empty result
func (detector *StalenessDetector) Detect(ctx context.Context, groupName string) ([]nodegroup.Instance, error) {
	contextLogger := log.FromContext(ctx)

	group, err := detector.controlPlane.DescribeGroup(ctx, groupName)
	if err != nil {
		return nil, fmt.Errorf("while describing node group %s: %w", groupName, err)
	}
	if group.LaunchTemplate.IsEmpty() {
		return nil, fmt.Errorf("node group %s: %w", groupName, rollouterrors.ErrNoLaunchTemplate)
	}

	template, err := detector.controlPlane.DescribeLaunchTemplate(ctx, group.LaunchTemplate)
	if err != nil {
		return nil, fmt.Errorf("while describing the launch template of node group %s: %w", groupName, err)
	}

	pinnedVersion, err := template.PinVersion(group.LaunchTemplate)
	if err != nil {
		return nil, fmt.Errorf("node group %s references an invalid launch template version %q: %w",
			groupName, group.LaunchTemplate.Version, err)
	}
	contextLogger.Debug("Pinned launch template version",
		"launchTemplateID", template.ID,
		"launchTemplateName", template.Name,
		"reference", group.LaunchTemplate.Version,
		"pinnedVersion", pinnedVersion)

	stale := nodegroup.FilterInstances(group.Instances, func(instance nodegroup.Instance) bool {
		return isStale(instance, template.ID, pinnedVersion)
	})
	if len(stale) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(stale))
	for _, instance := range stale {
		ids = append(ids, instance.ID)
	}
	details, err := detector.controlPlane.DescribeInstances(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("while describing the stale instances of node group %s: %w", groupName, err)
	}
	detailsByID := make(map[string]nodegroup.Instance, len(details))
	for _, instance := range details {
		detailsByID[instance.ID] = instance
	}

	result := make([]nodegroup.Instance, 0, len(stale))
	for _, instance := range stale {
		detail, ok := detailsByID[instance.ID]
		if !ok {
			contextLogger.Warning("Stale instance not found in the compute API, skipping",
				"instanceID", instance.ID)
			continue
		}
		if !detail.IsLive() {
			contextLogger.Debug("Stale instance is not live anymore, skipping",
				"instanceID", instance.ID, "state", detail.State)
			continue
		}

		instance.NodeName = detail.NodeName
		instance.LaunchTime = detail.LaunchTime
		instance.State = detail.State
		result = append(result, instance)
	}

	return result, nil
}

func isStale(instance nodegroup.Instance, templateID string, pinnedVersion int64) bool {
	ref := instance.LaunchTemplate
	if ref.ID != "" && templateID != "" && ref.ID != templateID {
		return true
	}
	return ref.Version != strconv.FormatInt(pinnedVersion, 10)
}
