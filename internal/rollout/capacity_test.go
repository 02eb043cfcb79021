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
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodegroup"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CapacityController", func() {
	var (
		cp      *fakeControlPlane
		metrics *Metrics
	)

	BeforeEach(func() {
		cp = newFakeControlPlane(newFakeClock())
		cp.addGroup("workers", "1", "1", "2")
		metrics = NewMetrics(nil)
	})

	It("adds one to the desired capacity", func(ctx SpecContext) {
		controller := NewCapacityController(cp, false, metrics)

		Expect(controller.ScaleOut(ctx, "workers")).To(Succeed())
		Expect(cp.setCapacityCalls).To(Equal([]capacityCall{{group: "workers", capacity: 4}}))
		Expect(cp.groups["workers"].DesiredCapacity).To(BeEquivalentTo(4))
		Expect(testutil.ToFloat64(metrics.ScaleOuts)).To(BeEquivalentTo(1))
	})

	It("terminates instances decrementing the desired capacity", func(ctx SpecContext) {
		controller := NewCapacityController(cp, false, metrics)

		Expect(controller.Terminate(ctx, "i-workers-1")).To(Succeed())
		Expect(cp.terminateCalls).To(Equal([]string{"i-workers-1"}))
		Expect(cp.groups["workers"].DesiredCapacity).To(BeEquivalentTo(2))
		Expect(testutil.ToFloat64(metrics.Terminations)).To(BeEquivalentTo(1))
	})

	It("has a net-zero effect on the capacity for a scale-out and a termination", func(ctx SpecContext) {
		controller := NewCapacityController(cp, false, metrics)

		Expect(controller.ScaleOut(ctx, "workers")).To(Succeed())
		Expect(controller.Terminate(ctx, "i-workers-1")).To(Succeed())
		Expect(cp.groups["workers"].DesiredCapacity).To(BeEquivalentTo(3))
	})

	It("doesn't change anything in dry-run mode", func(ctx SpecContext) {
		controller := NewCapacityController(cp, true, metrics)

		Expect(controller.ScaleOut(ctx, "workers")).To(Succeed())
		Expect(controller.Terminate(ctx, "i-workers-1")).To(Succeed())
		Expect(cp.mutatingCalls()).To(BeZero())
		Expect(cp.groups["workers"].DesiredCapacity).To(BeEquivalentTo(3))
		Expect(testutil.ToFloat64(metrics.ScaleOuts)).To(BeZero())
	})

	It("fails the scale-out of unknown groups", func(ctx SpecContext) {
		controller := NewCapacityController(cp, false, metrics)
		Expect(controller.ScaleOut(ctx, "unknown")).To(MatchError(rollouterrors.ErrNotFound))
		Expect(cp.setCapacityCalls).To(BeEmpty())
	})

	It("counts the live instances", func(ctx SpecContext) {
		controller := NewCapacityController(cp, false, metrics)
		instance := cp.instances["i-workers-2"]
		instance.State = nodegroup.StateTerminating
		cp.instances["i-workers-2"] = instance

		Expect(controller.LiveInstances(ctx, "workers")).To(Equal(2))
	})

	It("counts zero live instances in an empty group", func(ctx SpecContext) {
		cp.addGroup("empty")
		controller := NewCapacityController(cp, false, metrics)

		Expect(controller.LiveInstances(ctx, "empty")).To(BeZero())
		Expect(cp.describeInstancesCalls).To(BeZero())
	})
})
