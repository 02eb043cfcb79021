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
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	autoscalingtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// fakeAutoScaling records the requests and answers with the configured
// groups. Groups are paginated one per page
type fakeAutoScaling struct {
	groups []autoscalingtypes.AutoScalingGroup
	err    error

	describeInputs  []*autoscaling.DescribeAutoScalingGroupsInput
	capacityInputs  []*autoscaling.SetDesiredCapacityInput
	terminateInputs []*autoscaling.TerminateInstanceInAutoScalingGroupInput
	createTagInputs []*autoscaling.CreateOrUpdateTagsInput
	deleteTagInputs []*autoscaling.DeleteTagsInput
}

func (f *fakeAutoScaling) DescribeAutoScalingGroups(
	_ context.Context,
	params *autoscaling.DescribeAutoScalingGroupsInput,
	_ ...func(*autoscaling.Options),
) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
	f.describeInputs = append(f.describeInputs, params)
	if f.err != nil {
		return nil, f.err
	}

	var matching []autoscalingtypes.AutoScalingGroup
	for _, group := range f.groups {
		if len(params.AutoScalingGroupNames) > 0 &&
			aws.ToString(group.AutoScalingGroupName) != params.AutoScalingGroupNames[0] {
			continue
		}
		matching = append(matching, group)
	}

	// one group per page, the token being the index of the next one
	start := 0
	if params.NextToken != nil {
		for i := range matching {
			if aws.ToString(matching[i].AutoScalingGroupName) == *params.NextToken {
				start = i
			}
		}
	}
	output := &autoscaling.DescribeAutoScalingGroupsOutput{}
	if start < len(matching) {
		output.AutoScalingGroups = matching[start : start+1]
	}
	if start+1 < len(matching) {
		output.NextToken = matching[start+1].AutoScalingGroupName
	}
	return output, nil
}

func (f *fakeAutoScaling) SetDesiredCapacity(
	_ context.Context,
	params *autoscaling.SetDesiredCapacityInput,
	_ ...func(*autoscaling.Options),
) (*autoscaling.SetDesiredCapacityOutput, error) {
	f.capacityInputs = append(f.capacityInputs, params)
	return &autoscaling.SetDesiredCapacityOutput{}, f.err
}

func (f *fakeAutoScaling) TerminateInstanceInAutoScalingGroup(
	_ context.Context,
	params *autoscaling.TerminateInstanceInAutoScalingGroupInput,
	_ ...func(*autoscaling.Options),
) (*autoscaling.TerminateInstanceInAutoScalingGroupOutput, error) {
	f.terminateInputs = append(f.terminateInputs, params)
	return &autoscaling.TerminateInstanceInAutoScalingGroupOutput{}, f.err
}

func (f *fakeAutoScaling) CreateOrUpdateTags(
	_ context.Context,
	params *autoscaling.CreateOrUpdateTagsInput,
	_ ...func(*autoscaling.Options),
) (*autoscaling.CreateOrUpdateTagsOutput, error) {
	f.createTagInputs = append(f.createTagInputs, params)
	return &autoscaling.CreateOrUpdateTagsOutput{}, f.err
}

func (f *fakeAutoScaling) DeleteTags(
	_ context.Context,
	params *autoscaling.DeleteTagsInput,
	_ ...func(*autoscaling.Options),
) (*autoscaling.DeleteTagsOutput, error) {
	f.deleteTagInputs = append(f.deleteTagInputs, params)
	return &autoscaling.DeleteTagsOutput{}, f.err
}

// fakeEC2 answers with the configured launch templates and instances
type fakeEC2 struct {
	templates []ec2types.LaunchTemplate
	instances []ec2types.Instance
	err       error

	templateInputs []*ec2.DescribeLaunchTemplatesInput
	instanceInputs []*ec2.DescribeInstancesInput
}

func (f *fakeEC2) DescribeLaunchTemplates(
	_ context.Context,
	params *ec2.DescribeLaunchTemplatesInput,
	_ ...func(*ec2.Options),
) (*ec2.DescribeLaunchTemplatesOutput, error) {
	f.templateInputs = append(f.templateInputs, params)
	if f.err != nil {
		return nil, f.err
	}

	output := &ec2.DescribeLaunchTemplatesOutput{}
	for _, template := range f.templates {
		if len(params.LaunchTemplateIds) > 0 && aws.ToString(template.LaunchTemplateId) != params.LaunchTemplateIds[0] {
			continue
		}
		if len(params.LaunchTemplateNames) > 0 &&
			aws.ToString(template.LaunchTemplateName) != params.LaunchTemplateNames[0] {
			continue
		}
		output.LaunchTemplates = append(output.LaunchTemplates, template)
	}
	return output, nil
}

func (f *fakeEC2) DescribeInstances(
	_ context.Context,
	params *ec2.DescribeInstancesInput,
	_ ...func(*ec2.Options),
) (*ec2.DescribeInstancesOutput, error) {
	f.instanceInputs = append(f.instanceInputs, params)
	if f.err != nil {
		return nil, f.err
	}

	wanted := make(map[string]bool)
	for _, filter := range params.Filters {
		for _, value := range filter.Values {
			wanted[value] = true
		}
	}

	reservation := ec2types.Reservation{}
	for _, instance := range f.instances {
		if wanted[aws.ToString(instance.InstanceId)] {
			reservation.Instances = append(reservation.Instances, instance)
		}
	}
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{reservation}}, nil
}

func newEC2Instance(id, dnsName string, state ec2types.InstanceStateName, launchTime time.Time) ec2types.Instance {
	return ec2types.Instance{
		InstanceId:     aws.String(id),
		PrivateDnsName: aws.String(dnsName),
		LaunchTime:     aws.Time(launchTime),
		State:          &ec2types.InstanceState{Name: state},
	}
}

func notFoundError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "not found"}
}
