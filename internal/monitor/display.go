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

package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/watchdot/watchdot/internal/balance"
	"github.com/watchdot/watchdot/internal/registry"
)

// Status symbols for visual indicators
const (
	symbolSafe    = "●"
	symbolWorking = "◐"
	symbolTrouble = "○"
)

// Display is the live terminal dashboard for the watch loop: one row per
// chain with the latest scan outcome.
type Display struct {
	app    *tview.Application
	table  *tview.Table
	footer *tview.TextView

	mu       sync.Mutex
	chains   []registry.ChainSpec
	outcomes map[string]Outcome
	lastScan map[string]time.Time
}

// NewDisplay builds the dashboard over the resolved chain set.
func NewDisplay(chains []registry.ChainSpec) *Display {
	return &Display{
		app:      tview.NewApplication(),
		table:    tview.NewTable(),
		footer:   tview.NewTextView(),
		chains:   chains,
		outcomes: make(map[string]Outcome),
		lastScan: make(map[string]time.Time),
	}
}

// Record feeds the latest outcome for a chain. Safe to call from the scan
// goroutine; registered as the orchestrator's outcome hook.
func (d *Display) Record(outcome Outcome) {
	d.mu.Lock()
	d.outcomes[outcome.Spec.ID] = outcome
	d.lastScan[outcome.Spec.ID] = time.Now()
	d.mu.Unlock()

	// QueueUpdateDraw blocks until the UI loop picks the update up, which
	// must not stall the scan; hand it off.
	go d.app.QueueUpdateDraw(func() {
		d.render()
	})
}

// Run blocks on the UI loop until the user quits with q or Ctrl-C.
func (d *Display) Run(stop func()) error {
	d.table.SetBorders(false)
	d.table.SetSelectable(false, false)

	d.footer.SetText(" q: quit").SetTextColor(tcell.ColorGray)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.table, 0, 1, true).
		AddItem(d.footer, 1, 0, false)

	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' || event.Key() == tcell.KeyCtrlC {
			stop()
			d.app.Stop()
			return nil
		}
		return event
	})

	d.render()
	return d.app.SetRoot(flex, true).Run()
}

// Stop terminates the UI loop.
func (d *Display) Stop() {
	d.app.Stop()
}

func (d *Display) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	headers := []string{"CHAIN", "STATUS", "FREE", "TARGET BOND", "LAST SCAN"}
	for col, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetAttributes(tcell.AttrBold).
			SetExpansion(1)
		d.table.SetCell(0, col, cell)
	}

	for row, spec := range d.chains {
		outcome, scanned := d.outcomes[spec.ID]

		symbol := symbolWorking
		color := tcell.ColorGray
		status := "waiting"
		free := "-"
		target := "-"
		last := "-"

		if scanned {
			status = outcome.StatusLabel()
			switch outcome.Kind {
			case AlreadyInvulnerable, AlreadyCandidate, Registered, SkippedUnsupported:
				symbol, color = symbolSafe, tcell.ColorGreen
			case ScanError, InsufficientFunds, CannotCompete, ManualActionRequired:
				symbol, color = symbolTrouble, tcell.ColorRed
			default:
				symbol, color = symbolWorking, tcell.ColorOrange
			}
			if outcome.FreeBalance != nil {
				free = balance.Format(outcome.FreeBalance, spec.TokenDecimals, spec.Ecosystem.TokenSymbol())
			}
			if outcome.TargetBond != nil {
				target = balance.Format(outcome.TargetBond, spec.TokenDecimals, spec.Ecosystem.TokenSymbol())
			}
			last = time.Since(d.lastScan[spec.ID]).Round(time.Second).String() + " ago"
		}

		d.table.SetCell(row+1, 0, tview.NewTableCell(fmt.Sprintf("%s %s", symbol, spec.Name)).SetTextColor(color))
		d.table.SetCell(row+1, 1, tview.NewTableCell(status).SetTextColor(tcell.ColorWhite))
		d.table.SetCell(row+1, 2, tview.NewTableCell(free).SetTextColor(tcell.ColorWhite))
		d.table.SetCell(row+1, 3, tview.NewTableCell(target).SetTextColor(tcell.ColorWhite))
		d.table.SetCell(row+1, 4, tview.NewTableCell(last).SetTextColor(tcell.ColorGray))
	}
}
