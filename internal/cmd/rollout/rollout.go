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
	"errors"
	"fmt"
	"io"

	"github.com/cloudnative-pg/machinery/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/cloudnative-pg/eks-node-rollout/internal/cmd/common"
	"github.com/cloudnative-pg/eks-node-rollout/internal/configuration"
	"github.com/cloudnative-pg/eks-node-rollout/internal/rollout"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/cloud/aws"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodes"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/versions"
)

// pushJobName is the Pushgateway job grouping the metrics of the runs
const pushJobName = "eks_node_rollout"

// ErrFailedGroups is returned in strict mode when a node group failed
var ErrFailedGroups = errors.New("the rollout of some node groups failed")

// clients is the set of API clients used by a rollout
type clients struct {
	controlPlane rollout.ControlPlane
	discoverer   rollout.GroupDiscoverer
	nodes        rollout.NodeClient
}

// newClients connects to the AWS APIs and to the Kubernetes cluster
func newClients(
	ctx context.Context,
	config *configuration.Data,
	configFlags *genericclioptions.ConfigFlags,
) (*clients, error) {
	awsConfig, err := aws.LoadConfig(ctx, config.Region)
	if err != nil {
		return nil, fmt.Errorf("while loading the AWS configuration: %w", err)
	}
	controlPlane, discoverer := aws.New(awsConfig, config.ClusterTag)

	restConfig, err := configFlags.ToRESTConfig()
	if err != nil {
		return nil, fmt.Errorf("while loading the Kubernetes configuration: %w", err)
	}
	restConfig.UserAgent = fmt.Sprintf("%s/v%s (%s)",
		versions.UserAgentName, versions.Version, versions.Info.Commit)

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("while creating the Kubernetes clientset: %w", err)
	}
	kubeClient, err := client.New(restConfig, client.Options{})
	if err != nil {
		return nil, fmt.Errorf("while creating the Kubernetes client: %w", err)
	}

	return &clients{
		controlPlane: controlPlane,
		discoverer:   discoverer,
		nodes:        nodes.NewClient(kubeClient, clientset),
	}, nil
}

// run executes the rollout and prints its report
func run(
	ctx context.Context,
	config *configuration.Data,
	clients *clients,
	format common.OutputFormat,
	writer io.Writer,
) error {
	contextLogger := log.FromContext(ctx)

	registry := prometheus.NewRegistry()
	options := rollout.OptionsFromConfiguration(config)
	options.Metrics = rollout.NewMetrics(registry)

	orchestrator := rollout.NewOrchestrator(clients.controlPlane, clients.discoverer, clients.nodes, options)
	report, runErr := orchestrator.Run(ctx, config.ClusterName)
	if report != nil {
		if err := printReport(report, format, writer); err != nil {
			return err
		}
	}

	if config.PushgatewayURL != "" {
		if err := pushMetrics(context.WithoutCancel(ctx), config, registry); err != nil {
			contextLogger.Warning("Cannot push the metrics of the run",
				"url", config.PushgatewayURL, "err", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	if config.Strict && report.HasFailures() {
		return fmt.Errorf("%w: %d of %d", ErrFailedGroups, len(report.Failed()), len(report.Groups))
	}

	return nil
}

// pushMetrics sends the metrics of the run to the Pushgateway
func pushMetrics(ctx context.Context, config *configuration.Data, gatherer prometheus.Gatherer) error {
	return push.New(config.PushgatewayURL, pushJobName).
		Gatherer(gatherer).
		Grouping("cluster", config.ClusterName).
		PushContext(ctx)
}
