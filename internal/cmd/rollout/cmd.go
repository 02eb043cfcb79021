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

// Package rollout implements the "rollout" subcommand, replacing the
// stale nodes of an EKS cluster
package rollout

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudnative-pg/machinery/pkg/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/cli-runtime/pkg/genericclioptions"

	"github.com/cloudnative-pg/eks-node-rollout/internal/cmd/common"
	"github.com/cloudnative-pg/eks-node-rollout/internal/configuration"
)

// NewCmd creates the "rollout" subcommand
func NewCmd(configFlags *genericclioptions.ConfigFlags) *cobra.Command {
	config := *configuration.Current
	var (
		noDryRun bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Replace the nodes running an outdated launch template version",
		Long: "Replace, one at a time, the instances of the Auto Scaling groups of the cluster " +
			"that were not launched from the current launch template version. " +
			"Runs in dry-run mode unless --no-dry-run is passed.",
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if config.Debug {
				log.SetLogLevel(log.DebugLevelString)
			}
			return common.ConfigureColor(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if noDryRun {
				config.DryRun = false
			}
			if err := config.Validate(); err != nil {
				return err
			}
			format, err := common.ParseOutputFormat(output)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			contextLogger := log.FromContext(ctx).WithName("rollout").WithValues("runID", uuid.NewString())
			ctx = log.IntoContext(ctx, contextLogger)

			clients, err := newClients(ctx, &config, configFlags)
			if err != nil {
				return err
			}
			return run(ctx, &config, clients, format, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	addConfigurationFlags(flags, &config)
	flags.BoolVar(&noDryRun, "no-dry-run", false, "Really replace the nodes")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "no-dry-run")
	flags.StringVarP(&output, "output", "o", string(common.OutputFormatText),
		"Output format of the report: text, json or yaml")
	common.AddColorControlFlags(cmd)

	return cmd
}

// addConfigurationFlags binds the configuration fields to the command
// line, using the current values as defaults
func addConfigurationFlags(flags *pflag.FlagSet, config *configuration.Data) {
	flags.StringVar(&config.ClusterName, "cluster-name", config.ClusterName,
		"The name of the EKS cluster. Defaults to the value of the EKS_NODE_ROLLOUT_CLUSTER_NAME environment variable")
	flags.BoolVar(&config.DryRun, "dry-run", config.DryRun,
		"Run with read-only API calls. Defaults to the value of the EKS_NODE_ROLLOUT_DRY_RUN environment variable")
	flags.BoolVar(&config.Debug, "debug", config.Debug, "Enable debug logging")
	flags.BoolVar(&config.Strict, "strict", config.Strict,
		"Exit with an error when the rollout of a node group failed")
	flags.StringVar(&config.Region, "region", config.Region,
		"The AWS region. Defaults to the AWS SDK configuration chain")
	flags.StringVar(&config.ClusterTag, "cluster-tag", config.ClusterTag,
		"The tag identifying the Auto Scaling groups of the cluster. "+
			"A %s placeholder is replaced by the cluster name")
	flags.StringVar(&config.AutoscalerTag, "autoscaler-tag", config.AutoscalerTag,
		"The tag suspended while rolling out an Auto Scaling group")
	flags.DurationVar(&config.SettleInterval, "settle-interval", config.SettleInterval,
		"Time to wait after a scale-out before looking for the new instance")
	flags.DurationVar(&config.PollDelay, "poll-delay", config.PollDelay,
		"Time to wait before polling the readiness of a new node")
	flags.DurationVar(&config.ReadinessTimeout, "readiness-timeout", config.ReadinessTimeout,
		"Timeout of every readiness check")
	flags.DurationVar(&config.ReadinessDeadline, "readiness-deadline", config.ReadinessDeadline,
		"Maximum time to wait for a new node to become Ready")
	flags.DurationVar(&config.DrainTimeout, "drain-timeout", config.DrainTimeout,
		"Timeout of the drain of a node")
	flags.DurationVar(&config.GroupDelay, "group-delay", config.GroupDelay,
		"Minimum time between the end of a replacement and the start of one in another node group")
	flags.DurationVar(&config.InstanceDelay, "instance-delay", config.InstanceDelay,
		"Minimum time between the end of a replacement and the start of the next one in the same node group")
	flags.IntVar(&config.ResolveAttempts, "resolve-attempts", config.ResolveAttempts,
		"Maximum number of lookups of a new instance")
	flags.IntVar(&config.ReadinessAttempts, "readiness-attempts", config.ReadinessAttempts,
		"Maximum number of readiness checks of a new node")
	flags.StringVar(&config.PushgatewayURL, "pushgateway-url", config.PushgatewayURL,
		"The Prometheus Pushgateway receiving the metrics of the run")
}
