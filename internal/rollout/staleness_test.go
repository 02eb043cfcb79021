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
	"time"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/nodegroup"
	"github.com/cloudnative-pg/eks-node-rollout/pkg/rollouterrors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("StalenessDetector", func() {
	var (
		clock    *fakeClock
		cp       *fakeControlPlane
		detector *StalenessDetector
	)

	BeforeEach(func() {
		clock = newFakeClock()
		cp = newFakeControlPlane(clock)
		detector = NewStalenessDetector(cp)
	})

	ids := func(instances []nodegroup.Instance) []string {
		result := make([]string, 0, len(instances))
		for _, instance := range instances {
			result = append(result, instance.ID)
		}
		return result
	}

	It("returns the instances not running the latest version, in listing order", func(ctx SpecContext) {
		cp.addGroup("foobar", "1", "2", "1")

		stale, err := detector.Detect(ctx, "foobar")
		Expect(err).ToNot(HaveOccurred())
		Expect(ids(stale)).To(Equal([]string{"i-foobar-1", "i-foobar-3"}))
		Expect(stale[0].NodeName).To(Equal("ip-foobar-1.ec2.internal"))
		Expect(stale[0].LaunchTime).To(Equal(clock.Now().Add(-48 * time.Hour)))
	})

	It("returns exactly the two version-1 instances of {1, 1, 2}", func(ctx SpecContext) {
		cp.addGroup("foobar", "1", "1", "2")

		stale, err := detector.Detect(ctx, "foobar")
		Expect(err).ToNot(HaveOccurred())
		Expect(ids(stale)).To(Equal([]string{"i-foobar-1", "i-foobar-2"}))
	})

	It("returns nothing without describing the instances when the group is up to date", func(ctx SpecContext) {
		cp.addGroup("foobar", "2", "2")

		stale, err := detector.Detect(ctx, "foobar")
		Expect(err).ToNot(HaveOccurred())
		Expect(stale).To(BeEmpty())
		Expect(cp.describeInstancesCalls).To(BeZero())
	})

	It("pins the $Default alias to the default version", func(ctx SpecContext) {
		group := cp.addGroup("foobar", "1", "2")
		group.LaunchTemplate.Version = nodegroup.VersionDefault

		stale, err := detector.Detect(ctx, "foobar")
		Expect(err).ToNot(HaveOccurred())
		Expect(ids(stale)).To(Equal([]string{"i-foobar-2"}))
	})

	It("compares against an explicitly pinned version", func(ctx SpecContext) {
		group := cp.addGroup("foobar", "1", "2", "3")
		group.LaunchTemplate.Version = "3"

		stale, err := detector.Detect(ctx, "foobar")
		Expect(err).ToNot(HaveOccurred())
		Expect(ids(stale)).To(Equal([]string{"i-foobar-1", "i-foobar-2"}))
	})

	It("considers stale the instances launched from another template", func(ctx SpecContext) {
		group := cp.addGroup("foobar", "2", "2")
		group.Instances[1].LaunchTemplate.ID = "lt-previous"

		stale, err := detector.Detect(ctx, "foobar")
		Expect(err).ToNot(HaveOccurred())
		Expect(ids(stale)).To(Equal([]string{"i-foobar-2"}))
	})

	It("skips stale instances that are not live anymore", func(ctx SpecContext) {
		cp.addGroup("foobar", "1", "1")
		instance := cp.instances["i-foobar-1"]
		instance.State = nodegroup.StateTerminating
		cp.instances["i-foobar-1"] = instance

		stale, err := detector.Detect(ctx, "foobar")
		Expect(err).ToNot(HaveOccurred())
		Expect(ids(stale)).To(Equal([]string{"i-foobar-2"}))
	})

	It("fails with NotFound for unknown groups", func(ctx SpecContext) {
		_, err := detector.Detect(ctx, "unknown")
		Expect(err).To(MatchError(rollouterrors.ErrNotFound))
	})

	It("fails when the group has no launch template", func(ctx SpecContext) {
		group := cp.addGroup("foobar", "1")
		group.LaunchTemplate = nodegroup.LaunchTemplateRef{}

		_, err := detector.Detect(ctx, "foobar")
		Expect(err).To(MatchError(rollouterrors.ErrNoLaunchTemplate))
	})

	It("fails when the group references an invalid version", func(ctx SpecContext) {
		group := cp.addGroup("foobar", "1")
		group.LaunchTemplate.Version = "latest"

		_, err := detector.Detect(ctx, "foobar")
		Expect(err).To(HaveOccurred())
	})

	It("has no side effects", func(ctx SpecContext) {
		cp.addGroup("foobar", "1", "1", "2")

		_, err := detector.Detect(ctx, "foobar")
		Expect(err).ToNot(HaveOccurred())
		Expect(cp.mutatingCalls()).To(BeZero())
	})
})
