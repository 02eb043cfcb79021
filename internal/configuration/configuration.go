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

// Package configuration contains the configuration of eks-node-rollout,
// reading it from environment variables
package configuration

import (
	"fmt"
	"time"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/configparser"
)

const (
	// DefaultAutoscalerTag is the tag that enables the cluster-autoscaler
	// auto-discovery for a node group
	DefaultAutoscalerTag = "k8s.io/cluster-autoscaler/enabled"

	// DefaultClusterTag is the tag key template identifying the node groups
	// of a cluster. The placeholder is replaced by the cluster name
	DefaultClusterTag = "kubernetes.io/cluster/%s"
)

// Data is the struct containing the configuration of eks-node-rollout.
// Usually the configuration is read from the environment, and the
// command line flags take it as their defaults
type Data struct {
	// ClusterName is the name of the EKS cluster whose node groups
	// will be rolled out
	ClusterName string `json:"clusterName" env:"EKS_NODE_ROLLOUT_CLUSTER_NAME"`

	// DryRun enables read-only mode: every mutating call is only logged
	DryRun bool `json:"dryRun" env:"EKS_NODE_ROLLOUT_DRY_RUN"`

	// Debug raises the log level to debug
	Debug bool `json:"debug" env:"EKS_NODE_ROLLOUT_DEBUG"`

	// Strict makes the process fail when one of the node groups failed
	Strict bool `json:"strict" env:"EKS_NODE_ROLLOUT_STRICT"`

	// Region is the AWS region. When empty the AWS SDK default chain is used
	Region string `json:"region" env:"EKS_NODE_ROLLOUT_REGION"`

	// ClusterTag is the template of the tag key used to discover the
	// node groups of the cluster
	ClusterTag string `json:"clusterTag" env:"EKS_NODE_ROLLOUT_CLUSTER_TAG"`

	// AutoscalerTag is the tag suspended while a node group is rolled out
	AutoscalerTag string `json:"autoscalerTag" env:"EKS_NODE_ROLLOUT_AUTOSCALER_TAG"`

	// SettleInterval is the time waited after a scale-out, before looking
	// for the new instance
	SettleInterval time.Duration `json:"settleInterval" env:"EKS_NODE_ROLLOUT_SETTLE_INTERVAL"`

	// PollDelay is the time waited after the new instance has been found,
	// before polling for the readiness of its node
	PollDelay time.Duration `json:"pollDelay" env:"EKS_NODE_ROLLOUT_POLL_DELAY"`

	// ReadinessTimeout bounds every single readiness check
	ReadinessTimeout time.Duration `json:"readinessTimeout" env:"EKS_NODE_ROLLOUT_READINESS_TIMEOUT"`

	// ReadinessDeadline bounds the whole wait for a node to become Ready
	ReadinessDeadline time.Duration `json:"readinessDeadline" env:"EKS_NODE_ROLLOUT_READINESS_DEADLINE"`

	// DrainTimeout bounds the eviction of the workloads of a node
	DrainTimeout time.Duration `json:"drainTimeout" env:"EKS_NODE_ROLLOUT_DRAIN_TIMEOUT"`

	// GroupDelay is the minimum time between the end of a replacement
	// and the start of one in a different node group
	GroupDelay time.Duration `json:"groupDelay" env:"EKS_NODE_ROLLOUT_GROUP_DELAY"`

	// InstanceDelay is the minimum time between the end of a replacement
	// and the start of the next one in the same node group
	InstanceDelay time.Duration `json:"instanceDelay" env:"EKS_NODE_ROLLOUT_INSTANCE_DELAY"`

	// ResolveAttempts is the maximum number of lookups of the new instance
	ResolveAttempts int `json:"resolveAttempts" env:"EKS_NODE_ROLLOUT_RESOLVE_ATTEMPTS"`

	// ReadinessAttempts is the maximum number of readiness checks
	ReadinessAttempts int `json:"readinessAttempts" env:"EKS_NODE_ROLLOUT_READINESS_ATTEMPTS"`

	// PushgatewayURL is the address of the Prometheus Pushgateway receiving
	// the metrics of the run. Metrics are not pushed when empty
	PushgatewayURL string `json:"pushgatewayURL" env:"EKS_NODE_ROLLOUT_PUSHGATEWAY_URL"`
}

// Current is the configuration used by eks-node-rollout
var Current = NewConfiguration()

// newDefaultConfig creates a configuration holding the defaults
func newDefaultConfig() *Data {
	return &Data{
		DryRun:            true,
		ClusterTag:        DefaultClusterTag,
		AutoscalerTag:     DefaultAutoscalerTag,
		SettleInterval:    30 * time.Second,
		PollDelay:         10 * time.Second,
		ReadinessTimeout:  300 * time.Second,
		ReadinessDeadline: 20 * time.Minute,
		DrainTimeout:      30 * time.Second,
		ResolveAttempts:   10,
		ReadinessAttempts: 30,
	}
}

// NewConfiguration creates a new configuration holding the defaults
// and the values found in the environment
func NewConfiguration() *Data {
	configuration := newDefaultConfig()
	configuration.ReadConfigMap(nil)
	return configuration
}

// ReadConfigMap reads the configuration from the environment and the passed in data map
func (config *Data) ReadConfigMap(data map[string]string) {
	configparser.ReadConfigMap(config, newDefaultConfig(), data)
}

// Validate checks the values that cannot be defaulted
func (config *Data) Validate() error {
	if config.ClusterName == "" {
		return fmt.Errorf("the cluster name is required")
	}
	if config.ResolveAttempts < 1 {
		return fmt.Errorf("resolve attempts must be positive, got %d", config.ResolveAttempts)
	}
	if config.ReadinessAttempts < 1 {
		return fmt.Errorf("readiness attempts must be positive, got %d", config.ReadinessAttempts)
	}
	if config.AutoscalerTag == "" {
		return fmt.Errorf("the autoscaler tag cannot be empty")
	}
	return nil
}
