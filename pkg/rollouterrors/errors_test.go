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

package rollouterrors

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Error taxonomy", func() {
	It("classifies node registration errors as transient", func() {
		err := fmt.Errorf("while getting node ip-10-0-0-1: %w", ErrNodeNotRegistered)
		Expect(IsTransient(err)).To(BeTrue())
		Expect(IsTransient(ErrNotFound)).To(BeFalse())
		Expect(IsTransient(errors.New("boom"))).To(BeFalse())
	})

	It("matches consistency violations through errors.Is and errors.As", func() {
		err := fmt.Errorf("group failed: %w", &ConsistencyViolationError{Group: "workers", Before: 3, After: 3})
		Expect(errors.Is(err, ErrConsistencyViolation)).To(BeTrue())
		Expect(errors.Is(err, ErrDrainFailed)).To(BeFalse())

		var violation *ConsistencyViolationError
		Expect(errors.As(err, &violation)).To(BeTrue())
		Expect(violation.Group).To(Equal("workers"))
		Expect(err.Error()).To(ContainSubstring("before=3, after=3"))
	})

	It("keeps the cause of a failed drain", func() {
		cause := errors.New("global timeout reached: 30s")
		err := &DrainFailedError{Node: "ip-10-0-0-1.ec2.internal", Err: cause}
		Expect(errors.Is(err, ErrDrainFailed)).To(BeTrue())
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("ip-10-0-0-1.ec2.internal"))
	})
})
