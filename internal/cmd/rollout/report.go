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
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v4"

	"github.com/cloudnative-pg/eks-node-rollout/internal/cmd/common"
	"github.com/cloudnative-pg/eks-node-rollout/internal/rollout"
)

// printReport writes the report of a run in the requested format
func printReport(report *rollout.RunReport, format common.OutputFormat, writer io.Writer) error {
	if format != common.OutputFormatText {
		return common.Print(report, format, writer)
	}

	mode := "live"
	if report.DryRun {
		mode = aurora.Yellow("dry run").String()
	}
	if _, err := fmt.Fprintf(writer, "Cluster %s (%s): %d instances replaced\n",
		report.ClusterName, mode, report.ReplacedInstances()); err != nil {
		return err
	}

	if len(report.Groups) == 0 {
		_, err := fmt.Fprintln(writer, aurora.Yellow("No node groups found"))
		return err
	}

	table := tabby.NewCustom(tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0))
	table.AddHeader("Group", "Stale", "Replaced", "Status", "Error")
	for _, outcome := range report.Groups {
		table.AddLine(outcome.Group, outcome.Stale, outcome.Replaced, colorStatus(outcome.Status), outcome.Error)
	}
	table.Print()

	return nil
}

func colorStatus(status rollout.GroupStatus) string {
	switch status {
	case rollout.StatusReplaced:
		return aurora.Green(status).String()
	case rollout.StatusFailed:
		return aurora.Red(status).String()
	default:
		return string(status)
	}
}
