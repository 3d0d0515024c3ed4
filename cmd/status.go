// Copyright © 2025 Attestant Limited.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/watchdot/watchdot/internal/balance"
	"github.com/watchdot/watchdot/internal/monitor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collator status on all chains (read-only)",
	Long: `Read the collator's status on every enabled chain without performing any
writes or sending any notifications. Errors encountered while reading are
printed but not alerted.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}

	orch, _, err := buildOrchestrator(cfg, false)
	if err != nil {
		return err
	}

	outcomes := orch.Status(context.Background())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tSTATUS\tFREE\tTARGET BOND")
	for _, o := range outcomes {
		free := "-"
		target := "-"
		symbol := o.Spec.Ecosystem.TokenSymbol()
		if o.FreeBalance != nil {
			free = balance.Format(o.FreeBalance, o.Spec.TokenDecimals, symbol)
		}
		if o.TargetBond != nil {
			target = balance.Format(o.TargetBond, o.Spec.TokenDecimals, symbol)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.Spec.ID, o.StatusLabel(), free, target)
	}
	return w.Flush()
}
