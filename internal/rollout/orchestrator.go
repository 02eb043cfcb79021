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
	"time"

	"github.com/cloudnative-pg/machinery/pkg/log"

	"github.com/cloudnative-pg/eks-node-rollout/internal/configuration"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/backoff"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodegroup"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/set"
)

// Options are the tunables of a rollout
type Options struct {
	// DryRun enables the read-only mode
	DryRun bool

	// AutoscalerTag is the marker tag of the cluster-autoscaler
	AutoscalerTag string

	// SettleInterval is waited after every scale-out
	SettleInterval time.Duration

	// PollDelay is waited before polling the readiness of a new node
	PollDelay time.Duration

	// ReadinessTimeout bounds a single readiness check
	ReadinessTimeout time.Duration

	// ReadinessDeadline bounds the whole readiness wait
	ReadinessDeadline time.Duration

	// DrainTimeout bounds the drain of a node
	DrainTimeout time.Duration

	// GroupDelay and InstanceDelay pace the replacements
	GroupDelay    time.Duration
	InstanceDelay time.Duration

	ResolvePolicy   backoff.Policy
	ReadinessPolicy backoff.Policy

	// Metrics collects the metrics of the run. When nil
	// unregistered metrics are used
	Metrics *Metrics
}

// DefaultOptions returns the default tunables, with dry-run enabled
func DefaultOptions() Options {
	return Options{
		DryRun:            true,
		AutoscalerTag:     configuration.DefaultAutoscalerTag,
		SettleInterval:    30 * time.Second,
		PollDelay:         10 * time.Second,
		ReadinessTimeout:  300 * time.Second,
		ReadinessDeadline: 20 * time.Minute,
		DrainTimeout:      30 * time.Second,
		ResolvePolicy: backoff.Policy{
			Attempts:  10,
			Delay:     5 * time.Second,
			MaxDelay:  time.Minute,
			MaxJitter: 500 * time.Millisecond,
		},
		ReadinessPolicy: backoff.Policy{
			Attempts: 30,
			Delay:    2 * time.Second,
			MaxDelay: 30 * time.Second,
		},
	}
}

// OptionsFromConfiguration applies the passed configuration to the default options
func OptionsFromConfiguration(config *configuration.Data) Options {
	options := DefaultOptions()
	options.DryRun = config.DryRun
	options.AutoscalerTag = config.AutoscalerTag
	options.SettleInterval = config.SettleInterval
	options.PollDelay = config.PollDelay
	options.ReadinessTimeout = config.ReadinessTimeout
	options.ReadinessDeadline = config.ReadinessDeadline
	options.DrainTimeout = config.DrainTimeout
	options.GroupDelay = config.GroupDelay
	options.InstanceDelay = config.InstanceDelay
	options.ResolvePolicy.Attempts = config.ResolveAttempts
	options.ReadinessPolicy.Attempts = config.ReadinessAttempts
	return options
}

// Orchestrator rolls out the node groups of a cluster
type Orchestrator struct {
	discoverer GroupDiscoverer
	detector   *StalenessDetector
	capacity   *CapacityController
	resolver   *InstanceResolver
	readiness  *ReadinessWaiter
	drainer    *DrainCoordinator
	guard      *AutoscalerGuard
	pacer      *Pacer

	options Options
	metrics *Metrics

	sleep        backoff.SleepFunc
	timeProvider timeFunc

	// terminated holds the IDs of the instances targeted for
	// termination in the current run
	terminated *set.Set[string]
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	controlPlane ControlPlane,
	discoverer GroupDiscoverer,
	nodeClient NodeClient,
	options Options,
) *Orchestrator {
	metrics := options.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Orchestrator{
		discoverer: discoverer,
		detector:   NewStalenessDetector(controlPlane),
		capacity:   NewCapacityController(controlPlane, options.DryRun, metrics),
		resolver:   NewInstanceResolver(controlPlane, options.DryRun, options.ResolvePolicy),
		readiness: NewReadinessWaiter(
			nodeClient, options.ReadinessTimeout, options.ReadinessDeadline, options.ReadinessPolicy),
		drainer:      NewDrainCoordinator(nodeClient, options.DrainTimeout, options.DryRun, metrics),
		guard:        NewAutoscalerGuard(controlPlane, options.AutoscalerTag, options.DryRun),
		pacer:        NewPacer(options.GroupDelay, options.InstanceDelay),
		options:      options,
		metrics:      metrics,
		sleep:        backoff.ContextSleep,
		timeProvider: time.Now,
	}
}

// Run rolls out every node group of the cluster, one after the other.
// The failure of a group doesn't stop the others and is recorded in the
// report. An error is returned only when the run itself cannot proceed
func (orchestrator *Orchestrator) Run(ctx context.Context, clusterName string) (*RunReport, error) {
	contextLogger := log.FromContext(ctx).WithValues(
		"clusterName", clusterName,
		"dryRun", orchestrator.options.DryRun)
	ctx = log.IntoContext(ctx, contextLogger)

	report := &RunReport{
		ClusterName: clusterName,
		DryRun:      orchestrator.options.DryRun,
		StartedAt:   orchestrator.timeProvider(),
	}

	groups, err := orchestrator.discoverer.DiscoverGroups(ctx, clusterName)
	if err != nil {
		return nil, fmt.Errorf("while discovering the node groups of cluster %s: %w", clusterName, err)
	}
	contextLogger.Info("Discovered node groups", "groups", groups)

	orchestrator.terminated = set.New[string]()
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			report.CompletedAt = orchestrator.timeProvider()
			return report, fmt.Errorf("rollout of cluster %s interrupted: %w", clusterName, err)
		}

		groupLogger := contextLogger.WithValues("group", group)
		outcome := orchestrator.rolloutGroup(log.IntoContext(ctx, groupLogger), group)
		orchestrator.metrics.GroupOutcomes.WithLabelValues(string(outcome.Status)).Inc()
		report.Groups = append(report.Groups, outcome)
	}

	report.CompletedAt = orchestrator.timeProvider()
	contextLogger.Info("Rollout completed",
		"groups", len(report.Groups),
		"failedGroups", len(report.Failed()),
		"replacedInstances", report.ReplacedInstances())

	// A cancellation hitting the last group is reported too
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("rollout of cluster %s interrupted: %w", clusterName, err)
	}
	return report, nil
}

func (orchestrator *Orchestrator) rolloutGroup(ctx context.Context, group string) GroupOutcome {
	contextLogger := log.FromContext(ctx)
	outcome := GroupOutcome{Group: group}

	stale, err := orchestrator.detector.Detect(ctx, group)
	if err != nil {
		return failGroup(ctx, outcome, err)
	}
	outcome.Stale = len(stale)
	if len(stale) == 0 {
		contextLogger.Info("Node group is up to date")
		outcome.Status = StatusUpToDate
		return outcome
	}
	contextLogger.Info("Found stale instances", "count", len(stale))

	err = orchestrator.guard.Do(ctx, group, func(ctx context.Context) error {
		for _, instance := range stale {
			if orchestrator.terminated.Has(instance.ID) {
				log.FromContext(ctx).Warning("Instance already targeted for termination, skipping",
					"instanceID", instance.ID)
				continue
			}
			if err := orchestrator.replace(ctx, group, instance); err != nil {
				return err
			}
			outcome.Replaced++
		}
		return nil
	})
	if err != nil {
		return failGroup(ctx, outcome, err)
	}

	outcome.Status = StatusReplaced
	return outcome
}

func failGroup(ctx context.Context, outcome GroupOutcome, err error) GroupOutcome {
	log.FromContext(ctx).Error(err, "Critical failure while rolling out the node group",
		"critical", true,
		"replaced", outcome.Replaced)
	outcome.Status = StatusFailed
	outcome.Err = err
	outcome.Error = err.Error()
	return outcome
}

// replace runs a full replacement cycle of a stale instance
func (orchestrator *Orchestrator) replace(ctx context.Context, group string, stale nodegroup.Instance) error {
	contextLogger := log.FromContext(ctx).WithValues(
		"instanceID", stale.ID,
		"nodeName", stale.NodeName)
	ctx = log.IntoContext(ctx, contextLogger)

	if err := orchestrator.pacer.Wait(ctx, group); err != nil {
		return err
	}
	defer orchestrator.pacer.Done(group)
	contextLogger.Info("Replacing stale instance")

	before, err := orchestrator.capacity.LiveInstances(ctx, group)
	if err != nil {
		return err
	}

	reference := orchestrator.timeProvider()
	if err := orchestrator.capacity.ScaleOut(ctx, group); err != nil {
		return err
	}
	if err := orchestrator.sleep(ctx, orchestrator.options.SettleInterval); err != nil {
		return err
	}

	replacement, err := orchestrator.resolver.Resolve(ctx, group, reference)
	if err != nil {
		return err
	}
	contextLogger.Info("Found the replacement instance",
		"newInstanceID", replacement.ID,
		"newNodeName", replacement.NodeName,
		"launchTime", replacement.LaunchTime)

	if err := orchestrator.sleep(ctx, orchestrator.options.PollDelay); err != nil {
		return err
	}
	waitStart := orchestrator.timeProvider()
	if err := orchestrator.readiness.Wait(ctx, replacement.NodeName); err != nil {
		return err
	}
	orchestrator.metrics.ReadinessDuration.Observe(orchestrator.timeProvider().Sub(waitStart).Seconds())

	after, err := orchestrator.capacity.LiveInstances(ctx, group)
	if err != nil {
		return err
	}
	if !orchestrator.options.DryRun && after <= before {
		return &rollouterrors.ConsistencyViolationError{Group: group, Before: before, After: after}
	}

	if stale.NodeName == "" {
		contextLogger.Warning("Stale instance has no node name, skipping drain")
	} else {
		summary, err := orchestrator.drainer.Drain(ctx, stale.NodeName)
		if err != nil {
			return err
		}
		contextLogger.Info("Node drained", "summary", summary)
	}

	orchestrator.terminated.Put(stale.ID)
	if err := orchestrator.capacity.Terminate(ctx, stale.ID); err != nil {
		return err
	}
	orchestrator.metrics.ReplacedInstances.WithLabelValues(group).Inc()
	return nil
}
