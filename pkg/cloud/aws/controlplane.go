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

// Package aws implements the control plane of the node groups on top of
// EC2 Auto Scaling groups
package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	autoscalingtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/smithy-go"
	"github.com/cloudnative-pg/machinery/pkg/log"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodegroup"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/versions"
)

// groupResourceType is the resource type of the tags of an Auto Scaling group
const groupResourceType = "auto-scaling-group"

// AutoScalingAPI is the subset of the Auto Scaling API we use
type AutoScalingAPI interface {
	DescribeAutoScalingGroups(
		ctx context.Context,
		params *autoscaling.DescribeAutoScalingGroupsInput,
		optFns ...func(*autoscaling.Options),
	) (*autoscaling.DescribeAutoScalingGroupsOutput, error)
	SetDesiredCapacity(
		ctx context.Context,
		params *autoscaling.SetDesiredCapacityInput,
		optFns ...func(*autoscaling.Options),
	) (*autoscaling.SetDesiredCapacityOutput, error)
	TerminateInstanceInAutoScalingGroup(
		ctx context.Context,
		params *autoscaling.TerminateInstanceInAutoScalingGroupInput,
		optFns ...func(*autoscaling.Options),
	) (*autoscaling.TerminateInstanceInAutoScalingGroupOutput, error)
	CreateOrUpdateTags(
		ctx context.Context,
		params *autoscaling.CreateOrUpdateTagsInput,
		optFns ...func(*autoscaling.Options),
	) (*autoscaling.CreateOrUpdateTagsOutput, error)
	DeleteTags(
		ctx context.Context,
		params *autoscaling.DeleteTagsInput,
		optFns ...func(*autoscaling.Options),
	) (*autoscaling.DeleteTagsOutput, error)
}

// EC2API is the subset of the EC2 API we use
type EC2API interface {
	DescribeLaunchTemplates(
		ctx context.Context,
		params *ec2.DescribeLaunchTemplatesInput,
		optFns ...func(*ec2.Options),
	) (*ec2.DescribeLaunchTemplatesOutput, error)
	DescribeInstances(
		ctx context.Context,
		params *ec2.DescribeInstancesInput,
		optFns ...func(*ec2.Options),
	) (*ec2.DescribeInstancesOutput, error)
}

// ControlPlane manages the node groups through the Auto Scaling and EC2 APIs
type ControlPlane struct {
	autoscaling AutoScalingAPI
	ec2         EC2API

	// propagateAtLaunch remembers the PropagateAtLaunch flag of the tags
	// we've seen, so that a removed tag is restored as it was
	m                 sync.Mutex
	propagateAtLaunch map[string]bool
}

// NewControlPlane creates a new control plane using the passed API clients
func NewControlPlane(autoscalingClient AutoScalingAPI, ec2Client EC2API) *ControlPlane {
	return &ControlPlane{
		autoscaling:       autoscalingClient,
		ec2:               ec2Client,
		propagateAtLaunch: make(map[string]bool),
	}
}

// LoadConfig loads the AWS configuration from the default chain,
// overriding the region when not empty
func LoadConfig(ctx context.Context, region string) (aws.Config, error) {
	options := []func(*config.LoadOptions) error{
		config.WithAppID(fmt.Sprintf("%s-%s", versions.UserAgentName, versions.Version)),
	}
	if region != "" {
		options = append(options, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("while loading the AWS configuration: %w", err)
	}
	return cfg, nil
}

// New creates the control plane and the node group discoverer from an
// AWS configuration
func New(cfg aws.Config, clusterTag string) (*ControlPlane, *Discoverer) {
	autoscalingClient := autoscaling.NewFromConfig(cfg)
	ec2Client := ec2.NewFromConfig(cfg)
	return NewControlPlane(autoscalingClient, ec2Client), NewDiscoverer(autoscalingClient, clusterTag)
}

// DescribeGroup implements rollout.ControlPlane
func (cp *ControlPlane) DescribeGroup(ctx context.Context, name string) (*nodegroup.NodeGroup, error) {
	output, err := cp.autoscaling.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []string{name},
	})
	if err != nil {
		return nil, translateError(err)
	}
	if len(output.AutoScalingGroups) == 0 {
		return nil, fmt.Errorf("auto scaling group %s: %w", name, rollouterrors.ErrNotFound)
	}

	group := output.AutoScalingGroups[0]
	cp.rememberTags(name, group.Tags)
	return toNodeGroup(group), nil
}

// SetDesiredCapacity implements rollout.ControlPlane
func (cp *ControlPlane) SetDesiredCapacity(ctx context.Context, name string, capacity int32) error {
	log.FromContext(ctx).Debug("Setting desired capacity", "group", name, "desiredCapacity", capacity)
	_, err := cp.autoscaling.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: aws.String(name),
		DesiredCapacity:      aws.Int32(capacity),
		HonorCooldown:        aws.Bool(false),
	})
	return translateError(err)
}

// TerminateInstance implements rollout.ControlPlane
func (cp *ControlPlane) TerminateInstance(ctx context.Context, instanceID string, decrementCapacity bool) error {
	log.FromContext(ctx).Debug("Terminating instance",
		"instanceID", instanceID, "decrementCapacity", decrementCapacity)
	_, err := cp.autoscaling.TerminateInstanceInAutoScalingGroup(ctx,
		&autoscaling.TerminateInstanceInAutoScalingGroupInput{
			InstanceId:                     aws.String(instanceID),
			ShouldDecrementDesiredCapacity: aws.Bool(decrementCapacity),
		})
	return translateError(err)
}

// SetTag implements rollout.ControlPlane
func (cp *ControlPlane) SetTag(ctx context.Context, group, key, value string) error {
	_, err := cp.autoscaling.CreateOrUpdateTags(ctx, &autoscaling.CreateOrUpdateTagsInput{
		Tags: []autoscalingtypes.Tag{
			{
				ResourceId:        aws.String(group),
				ResourceType:      aws.String(groupResourceType),
				Key:               aws.String(key),
				Value:             aws.String(value),
				PropagateAtLaunch: aws.Bool(cp.propagates(group, key)),
			},
		},
	})
	return translateError(err)
}

// RemoveTag implements rollout.ControlPlane
func (cp *ControlPlane) RemoveTag(ctx context.Context, group, key string) error {
	_, err := cp.autoscaling.DeleteTags(ctx, &autoscaling.DeleteTagsInput{
		Tags: []autoscalingtypes.Tag{
			{
				ResourceId:   aws.String(group),
				ResourceType: aws.String(groupResourceType),
				Key:          aws.String(key),
			},
		},
	})
	return translateError(err)
}

func (cp *ControlPlane) rememberTags(group string, tags []autoscalingtypes.TagDescription) {
	cp.m.Lock()
	defer cp.m.Unlock()

	for _, tag := range tags {
		cp.propagateAtLaunch[group+"/"+aws.ToString(tag.Key)] = aws.ToBool(tag.PropagateAtLaunch)
	}
}

func (cp *ControlPlane) propagates(group, key string) bool {
	cp.m.Lock()
	defer cp.m.Unlock()

	return cp.propagateAtLaunch[group+"/"+key]
}

// translateError maps the "not found" errors of the AWS APIs to
// rollouterrors.ErrNotFound
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.ErrorCode(), "NotFound") {
		return fmt.Errorf("%w: %w", rollouterrors.ErrNotFound, err)
	}
	return err
}
