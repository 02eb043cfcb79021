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

package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	autoscalingtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodegroup"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"
)

// maxFilterValues is the maximum number of values of an EC2 filter
const maxFilterValues = 200

// DescribeLaunchTemplate implements rollout.ControlPlane
func (cp *ControlPlane) DescribeLaunchTemplate(
	ctx context.Context,
	ref nodegroup.LaunchTemplateRef,
) (*nodegroup.LaunchTemplate, error) {
	input := &ec2.DescribeLaunchTemplatesInput{}
	switch {
	case ref.ID != "":
		input.LaunchTemplateIds = []string{ref.ID}
	case ref.Name != "":
		input.LaunchTemplateNames = []string{ref.Name}
	default:
		return nil, rollouterrors.ErrNoLaunchTemplate
	}

	output, err := cp.ec2.DescribeLaunchTemplates(ctx, input)
	if err != nil {
		return nil, translateError(err)
	}
	if len(output.LaunchTemplates) == 0 {
		return nil, fmt.Errorf("launch template %s%s: %w", ref.ID, ref.Name, rollouterrors.ErrNotFound)
	}

	template := output.LaunchTemplates[0]
	return &nodegroup.LaunchTemplate{
		ID:             aws.ToString(template.LaunchTemplateId),
		Name:           aws.ToString(template.LaunchTemplateName),
		LatestVersion:  aws.ToInt64(template.LatestVersionNumber),
		DefaultVersion: aws.ToInt64(template.DefaultVersionNumber),
	}, nil
}

// DescribeInstances implements rollout.ControlPlane. Instances unknown to
// EC2 are not returned. This can happen for the ones that have just been
// launched
func (cp *ControlPlane) DescribeInstances(ctx context.Context, ids []string) ([]nodegroup.Instance, error) {
	result := make([]nodegroup.Instance, 0, len(ids))
	for start := 0; start < len(ids); start += maxFilterValues {
		end := min(start+maxFilterValues, len(ids))

		paginator := ec2.NewDescribeInstancesPaginator(cp.ec2, &ec2.DescribeInstancesInput{
			Filters: []ec2types.Filter{
				{
					Name:   aws.String("instance-id"),
					Values: ids[start:end],
				},
			},
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, translateError(err)
			}
			for _, reservation := range page.Reservations {
				for _, instance := range reservation.Instances {
					result = append(result, fromEC2Instance(instance))
				}
			}
		}
	}
	return result, nil
}

func toNodeGroup(group autoscalingtypes.AutoScalingGroup) *nodegroup.NodeGroup {
	result := &nodegroup.NodeGroup{
		Name:            aws.ToString(group.AutoScalingGroupName),
		DesiredCapacity: aws.ToInt32(group.DesiredCapacity),
		MinSize:         aws.ToInt32(group.MinSize),
		MaxSize:         aws.ToInt32(group.MaxSize),
		LaunchTemplate:  groupLaunchTemplate(group),
		Instances:       make([]nodegroup.Instance, 0, len(group.Instances)),
		Tags:            make(map[string]string, len(group.Tags)),
	}

	for _, instance := range group.Instances {
		result.Instances = append(result.Instances, nodegroup.Instance{
			ID:             aws.ToString(instance.InstanceId),
			LaunchTemplate: toLaunchTemplateRef(instance.LaunchTemplate),
			State:          fromLifecycleState(instance.LifecycleState),
		})
	}
	for _, tag := range group.Tags {
		result.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	return result
}

// groupLaunchTemplate gets the launch template of a group, that could be
// set directly or through a mixed instances policy
func groupLaunchTemplate(group autoscalingtypes.AutoScalingGroup) nodegroup.LaunchTemplateRef {
	if group.LaunchTemplate != nil {
		return toLaunchTemplateRef(group.LaunchTemplate)
	}
	if group.MixedInstancesPolicy != nil && group.MixedInstancesPolicy.LaunchTemplate != nil {
		return toLaunchTemplateRef(group.MixedInstancesPolicy.LaunchTemplate.LaunchTemplateSpecification)
	}
	return nodegroup.LaunchTemplateRef{}
}

func toLaunchTemplateRef(spec *autoscalingtypes.LaunchTemplateSpecification) nodegroup.LaunchTemplateRef {
	if spec == nil {
		return nodegroup.LaunchTemplateRef{}
	}
	return nodegroup.LaunchTemplateRef{
		ID:      aws.ToString(spec.LaunchTemplateId),
		Name:    aws.ToString(spec.LaunchTemplateName),
		Version: aws.ToString(spec.Version),
	}
}

func fromLifecycleState(state autoscalingtypes.LifecycleState) nodegroup.LifecycleState {
	value := string(state)
	switch {
	case value == string(autoscalingtypes.LifecycleStateInService):
		return nodegroup.StateRunning
	case strings.HasPrefix(value, "Pending"):
		return nodegroup.StatePending
	case strings.HasPrefix(value, "Terminating"):
		return nodegroup.StateTerminating
	case value == string(autoscalingtypes.LifecycleStateTerminated):
		return nodegroup.StateTerminated
	default:
		return nodegroup.StateUnknown
	}
}

func fromEC2Instance(instance ec2types.Instance) nodegroup.Instance {
	result := nodegroup.Instance{
		ID:       aws.ToString(instance.InstanceId),
		NodeName: aws.ToString(instance.PrivateDnsName),
		State:    nodegroup.StateUnknown,
	}
	if instance.LaunchTime != nil {
		result.LaunchTime = *instance.LaunchTime
	}
	if instance.State != nil {
		result.State = fromInstanceState(instance.State.Name)
	}
	return result
}

func fromInstanceState(state ec2types.InstanceStateName) nodegroup.LifecycleState {
	switch state {
	case ec2types.InstanceStateNamePending:
		return nodegroup.StatePending
	case ec2types.InstanceStateNameRunning:
		return nodegroup.StateRunning
	case ec2types.InstanceStateNameShuttingDown, ec2types.InstanceStateNameStopping:
		return nodegroup.StateTerminating
	case ec2types.InstanceStateNameTerminated, ec2types.InstanceStateNameStopped:
		return nodegroup.StateTerminated
	default:
		return nodegroup.StateUnknown
	}
}
