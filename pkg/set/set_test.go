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

package set

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Set", func() {
	It("starts with a list of values", func() {
		Expect(From("i-1", "i-2").Len()).To(Equal(2))
		Expect(From("i-1", "i-2", "i-2").Len()).To(Equal(2))
	})

	It("tells whether a value was added", func() {
		set := New[string]()
		Expect(set.Has("i-1")).To(BeFalse())
		Expect(set.Put("i-1")).To(BeTrue())
		Expect(set.Put("i-1")).To(BeFalse())
		Expect(set.Has("i-1")).To(BeTrue())
		Expect(set.Has("i-2")).To(BeFalse())
	})

	It("lists its values", func() {
		Expect(From(3, 1, 2).ToList()).To(ConsistOf(1, 2, 3))
		Expect(New[int]().ToList()).To(BeEmpty())
	})
})
