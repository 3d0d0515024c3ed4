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

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one scan across all chains and exit",
	Long: `Scan every enabled chain once, re-registering and growing the candidacy
bond where needed. Exits 0 when no chain produced an error outcome, 1
otherwise.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	orch, _, err := buildOrchestrator(cfg, true)
	if err != nil {
		return err
	}

	outcomes := orch.ScanOnce(context.Background())

	errored := 0
	for _, o := range outcomes {
		fmt.Println(o.Describe())
		if o.IsError() {
			errored++
		}
	}

	if errored > 0 {
		return exitWith(exitScanErrors, fmt.Errorf("%d of %d chains had errors", errored, len(outcomes)))
	}
	return nil
}
