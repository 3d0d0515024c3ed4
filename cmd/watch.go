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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/watchdot/watchdot/internal/config"
	"github.com/watchdot/watchdot/internal/logger"
	"github.com/watchdot/watchdot/internal/monitor"
	"github.com/watchdot/watchdot/internal/nodehealth"
	"github.com/watchdot/watchdot/internal/notify"
)

var (
	watchInterval uint64
	watchUI       bool
)

// nodeHealthScrapeInterval is the cadence for collator node metrics scrapes,
// independent of the much slower chain scan interval.
const nodeHealthScrapeInterval = time.Minute

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run continuous monitoring on a schedule",
	Long: `Scan all enabled chains repeatedly. The interval timer starts when a scan
finishes, so overlapping scans cannot occur. Shuts down cleanly on SIGTERM
or SIGINT, letting any in-flight chain scan reach a safe boundary first.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Uint64Var(&watchInterval, "interval", 0, "seconds between scans (default from config, else 3600)")
	watchCmd.Flags().BoolVar(&watchUI, "ui", false, "show a live terminal dashboard")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	orch, resolved, err := buildOrchestrator(cfg, true)
	if err != nil {
		return err
	}

	interval := cfg.CheckInterval()
	if watchInterval > 0 {
		interval = time.Duration(watchInterval) * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	if cfg.MetricsListenAddr != "" {
		go serveMetrics(cfg.MetricsListenAddr)
	}

	if targets := healthTargets(resolved); len(targets) > 0 {
		tracker := nodehealth.NewTracker(targets, notify.New(cfg.SlackWebhookURL))
		go tracker.Run(ctx, nodeHealthScrapeInterval)
	}

	if watchUI {
		return runWatchWithUI(ctx, cancel, orch, interval)
	}
	return orch.Watch(ctx, interval)
}

func runWatchWithUI(ctx context.Context, cancel context.CancelFunc, orch *monitor.Orchestrator, interval time.Duration) error {
	display := monitor.NewDisplay(orch.Chains())
	orch.SetOutcomeHook(display.Record)

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- orch.Watch(ctx, interval)
		display.Stop()
	}()

	if err := display.Run(cancel); err != nil {
		cancel()
		<-watchDone
		return err
	}
	return <-watchDone
}

func healthTargets(resolved []config.ResolvedChain) []nodehealth.Target {
	var targets []nodehealth.Target
	for _, rc := range resolved {
		if rc.NodeMetricsURL == "" {
			continue
		}
		targets = append(targets, nodehealth.Target{
			ChainID:    rc.ID,
			ChainName:  rc.Name,
			MetricsURL: rc.NodeMetricsURL,
		})
	}
	return targets
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listener starting", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener stopped", "error", err.Error())
	}
}
