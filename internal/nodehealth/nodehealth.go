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

// Package nodehealth watches the operator's own collator nodes through
// their Prometheus metrics endpoints. Being registered is not the same as
// producing: a collator can hold a slot while its node sits stalled. The
// tracker reads the substrate block-construction counters and raises a
// rate-limited alert when authorship stops moving.
package nodehealth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/watchdot/watchdot/internal/common"
	"github.com/watchdot/watchdot/internal/logger"
	"github.com/watchdot/watchdot/internal/notify"
)

// Substrate node metric families the tracker reads.
const (
	metricBestHeight        = "substrate_block_height"
	metricBlocksConstructed = "substrate_proposer_block_constructed_count"
)

// DefaultStallThreshold is how long authorship may sit still before an
// alert goes out.
const DefaultStallThreshold = 30 * time.Minute

// Sample is one scrape of a collator node.
type Sample struct {
	BestHeight        uint64
	BlocksConstructed uint64
	ScrapedAt         time.Time
	Err               error
}

// Target is one collator node to watch.
type Target struct {
	ChainID    string
	ChainName  string
	MetricsURL string
}

// Tracker scrapes each target on a fixed cadence and alerts when a node
// stops constructing blocks.
type Tracker struct {
	targets        []Target
	notifier       *notify.Dispatcher
	httpClient     *http.Client
	stallThreshold time.Duration
	now            func() time.Time

	mu   sync.Mutex
	last map[string]progress
}

type progress struct {
	blocksConstructed uint64
	lastAdvance       time.Time
	alerted           bool
}

// NewTracker builds a tracker over the configured targets.
func NewTracker(targets []Target, notifier *notify.Dispatcher) *Tracker {
	return &Tracker{
		targets:        targets,
		notifier:       notifier,
		httpClient:     common.NewHTTPClient(common.DefaultHTTPTimeout),
		stallThreshold: DefaultStallThreshold,
		now:            time.Now,
		last:           make(map[string]progress),
	}
}

// Run scrapes all targets on the given cadence until the context ends.
// Intended to run alongside the watch loop.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	if len(t.targets) == 0 {
		return
	}
	logger.Info("node health tracker starting", "targets", len(t.targets), "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.scrapeAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.scrapeAll(ctx)
		}
	}
}

func (t *Tracker) scrapeAll(ctx context.Context) {
	for _, target := range t.targets {
		sample := t.Scrape(ctx, target)
		t.evaluate(target, sample)
	}
}

// Scrape fetches and parses one node's metrics endpoint.
func (t *Tracker) Scrape(ctx context.Context, target Target) Sample {
	sample := Sample{ScrapedAt: t.now()}

	families, err := t.fetchMetrics(ctx, target.MetricsURL)
	if err != nil {
		sample.Err = err
		logger.Warn("node metrics scrape failed", "chain", target.ChainID, "error", err.Error())
		return sample
	}

	sample.BestHeight = gaugeValue(families, metricBestHeight, "status", "best")
	sample.BlocksConstructed = counterValue(families, metricBlocksConstructed)
	return sample
}

// evaluate updates the per-chain progress ledger and alerts on stalls.
func (t *Tracker) evaluate(target Target, sample Sample) {
	if sample.Err != nil {
		// An unreachable metrics endpoint is an ops concern, but the chain
		// scan already alerts on chain-side trouble; stay quiet here.
		return
	}

	t.mu.Lock()
	p, seen := t.last[target.ChainID]
	if !seen || sample.BlocksConstructed > p.blocksConstructed {
		recovered := seen && p.alerted
		t.last[target.ChainID] = progress{
			blocksConstructed: sample.BlocksConstructed,
			lastAdvance:       sample.ScrapedAt,
		}
		t.mu.Unlock()
		if recovered {
			logger.Info("block production recovered", "chain", target.ChainID)
		}
		return
	}

	stalled := sample.ScrapedAt.Sub(p.lastAdvance)
	shouldAlert := stalled >= t.stallThreshold
	if shouldAlert {
		p.alerted = true
		t.last[target.ChainID] = p
	}
	t.mu.Unlock()

	if shouldAlert {
		t.notifier.Emit(target.ChainID, notify.StalledBlockProduction, fmt.Sprintf(
			"*Block production stalled* on *%s*\nNo blocks constructed for %s. Please check the collator node.",
			target.ChainName, stalled.Round(time.Minute)))
	}
}

func (t *Tracker) fetchMetrics(ctx context.Context, endpoint string) (map[string]*io_prometheus_client.MetricFamily, error) {
	url := endpoint
	if !strings.HasSuffix(endpoint, "/metrics") {
		url = fmt.Sprintf("%s/metrics", endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from metrics endpoint", resp.StatusCode)
	}

	return parsePrometheusResponse(resp.Body)
}

func parsePrometheusResponse(r io.Reader) (map[string]*io_prometheus_client.MetricFamily, error) {
	parser := expfmt.TextParser{}
	metricFamilies, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics: %w", err)
	}
	return metricFamilies, nil
}

// gaugeValue picks a gauge by label match, e.g. block height with
// status="best".
func gaugeValue(families map[string]*io_prometheus_client.MetricFamily, name, labelName, labelValue string) uint64 {
	mf, ok := families[name]
	if !ok {
		return 0
	}
	for _, m := range mf.Metric {
		if labelName != "" && !hasLabel(m.Label, labelName, labelValue) {
			continue
		}
		if m.Gauge != nil && m.Gauge.Value != nil {
			return uint64(*m.Gauge.Value)
		}
	}
	return 0
}

func counterValue(families map[string]*io_prometheus_client.MetricFamily, name string) uint64 {
	mf, ok := families[name]
	if !ok || len(mf.Metric) == 0 {
		return 0
	}
	m := mf.Metric[0]
	if m.Counter != nil && m.Counter.Value != nil {
		return uint64(*m.Counter.Value)
	}
	if m.Gauge != nil && m.Gauge.Value != nil {
		return uint64(*m.Gauge.Value)
	}
	return 0
}

func hasLabel(labels []*io_prometheus_client.LabelPair, name, value string) bool {
	for _, l := range labels {
		if l.GetName() == name && l.GetValue() == value {
			return true
		}
	}
	return false
}
