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

package versions

import (
	"bytes"

	"github.com/cloudnative-pg/eks-node-rollout/pkg/versions"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("version command", func() {
	It("prints the build information", func() {
		var buffer bytes.Buffer
		cmd := NewCmd()
		cmd.SetOut(&buffer)
		cmd.SetArgs(nil)
		Expect(cmd.Execute()).To(Succeed())
		Expect(buffer.String()).To(HavePrefix("Build: "))
		Expect(buffer.String()).To(ContainSubstring(versions.Info.Version))
	})

	It("refuses arguments", func() {
		cmd := NewCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"extra"})
		Expect(cmd.Execute()).ToNot(Succeed())
	})
})
