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

package nodegroup

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Launch template versions", func() {
	template := LaunchTemplate{
		ID:             "lt-0123",
		LatestVersion:  7,
		DefaultVersion: 5,
	}

	DescribeTable("pinning a launch template reference",
		func(version string, expected int64) {
			pinned, err := template.PinVersion(LaunchTemplateRef{ID: "lt-0123", Version: version})
			Expect(err).ToNot(HaveOccurred())
			Expect(pinned).To(Equal(expected))
		},
		Entry("empty means latest", "", int64(7)),
		Entry("$Latest", VersionLatest, int64(7)),
		Entry("$Default", VersionDefault, int64(5)),
		Entry("an explicit version", "3", int64(3)),
	)

	It("refuses malformed versions", func() {
		_, err := template.PinVersion(LaunchTemplateRef{Version: "three"})
		Expect(err).To(HaveOccurred())
	})

	It("detects floating references", func() {
		Expect(LaunchTemplateRef{Version: VersionLatest}.IsFloating()).To(BeTrue())
		Expect(LaunchTemplateRef{Version: VersionDefault}.IsFloating()).To(BeTrue())
		Expect(LaunchTemplateRef{Version: "2"}.IsFloating()).To(BeFalse())
		Expect(LaunchTemplateRef{}.IsEmpty()).To(BeTrue())
		Expect(LaunchTemplateRef{Name: "workers"}.IsEmpty()).To(BeFalse())
	})
})

var _ = Describe("Node groups", func() {
	group := &NodeGroup{
		Name: "workers",
		Instances: []Instance{
			{ID: "i-1", State: StateRunning},
			{ID: "i-2", State: StateTerminating},
			{ID: "i-3", State: StatePending},
			{ID: "i-4", State: StateTerminated},
		},
		Tags: map[string]string{
			"k8s.io/cluster-autoscaler/enabled": "true",
		},
	}

	It("lists the instance IDs in order", func() {
		Expect(group.InstanceIDs()).To(Equal([]string{"i-1", "i-2", "i-3", "i-4"}))
	})

	It("filters the live instances", func() {
		live := FilterInstances(group.Instances, Instance.IsLive)
		Expect(live).To(HaveLen(2))
		Expect(live[0].ID).To(Equal("i-1"))
		Expect(live[1].ID).To(Equal("i-3"))
	})

	It("reads tags", func() {
		value, ok := group.Tag("k8s.io/cluster-autoscaler/enabled")
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal("true"))

		_, ok = group.Tag("missing")
		Expect(ok).To(BeFalse())
	})
})
