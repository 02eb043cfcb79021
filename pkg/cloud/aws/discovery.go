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
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	autoscalingtypes "github.com/aws/aws-sdk-go-v2/service/autoscaling/types"
	"github.com/cloudnative-pg/machinery/pkg/log"
)

// Discoverer finds the Auto Scaling groups of a cluster by their tags
type Discoverer struct {
	autoscaling autoscaling.DescribeAutoScalingGroupsAPIClient

	// clusterTag is the tag identifying the groups of a cluster. When it
	// contains a %s placeholder it is the template of a tag key, as in
	// "kubernetes.io/cluster/%s". Otherwise it is a tag key whose value
	// is the cluster name
	clusterTag string
}

// NewDiscoverer creates a new Discoverer
func NewDiscoverer(client autoscaling.DescribeAutoScalingGroupsAPIClient, clusterTag string) *Discoverer {
	return &Discoverer{
		autoscaling: client,
		clusterTag:  clusterTag,
	}
}

// filter builds the filter matching the groups of the cluster
func (discoverer *Discoverer) filter(clusterName string) autoscalingtypes.Filter {
	if strings.Contains(discoverer.clusterTag, "%s") {
		return autoscalingtypes.Filter{
			Name:   aws.String("tag-key"),
			Values: []string{fmt.Sprintf(discoverer.clusterTag, clusterName)},
		}
	}
	return autoscalingtypes.Filter{
		Name:   aws.String("tag:" + discoverer.clusterTag),
		Values: []string{clusterName},
	}
}

// DiscoverGroups implements rollout.GroupDiscoverer
func (discoverer *Discoverer) DiscoverGroups(ctx context.Context, clusterName string) ([]string, error) {
	filter := discoverer.filter(clusterName)
	log.FromContext(ctx).Debug("Discovering node groups",
		"filterName", aws.ToString(filter.Name),
		"filterValues", filter.Values)

	var result []string
	paginator := autoscaling.NewDescribeAutoScalingGroupsPaginator(discoverer.autoscaling,
		&autoscaling.DescribeAutoScalingGroupsInput{
			Filters: []autoscalingtypes.Filter{filter},
		})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("while listing the auto scaling groups: %w", translateError(err))
		}
		for _, group := range page.AutoScalingGroups {
			result = append(result, aws.ToString(group.AutoScalingGroupName))
		}
	}

	return result, nil
}
