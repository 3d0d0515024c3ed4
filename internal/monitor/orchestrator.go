package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/watchdot/watchdot/internal/chain"
	"github.com/watchdot/watchdot/internal/logger"
	"github.com/watchdot/watchdot/internal/registry"
)

// Orchestrator walks the chain set sequentially. Sequential scanning is
// deliberate: it removes proxy nonce races, notification interleaving, and
// balance races between dependent writes on the same chain.
type Orchestrator struct {
	scanner *Scanner
	chains  []registry.ChainSpec

	// latest outcomes, for the dashboard
	onOutcome func(Outcome)
}

// NewOrchestrator wires a scanner to the resolved chain set.
func NewOrchestrator(scanner *Scanner, chains []registry.ChainSpec) *Orchestrator {
	return &Orchestrator{scanner: scanner, chains: chains}
}

// Chains returns the resolved chain set in scan order.
func (o *Orchestrator) Chains() []registry.ChainSpec {
	out := make([]registry.ChainSpec, len(o.chains))
	copy(out, o.chains)
	return out
}

// SetOutcomeHook registers a callback invoked after each chain scan. Used by
// the watch dashboard; must not block.
func (o *Orchestrator) SetOutcomeHook(fn func(Outcome)) {
	o.onOutcome = fn
}

// ScanOnce scans every chain in registry order. One chain's failure never
// aborts the scan: panics and errors are reified into Error outcomes.
// Cancellation is observed between chains; already-collected outcomes are
// returned.
func (o *Orchestrator) ScanOnce(ctx context.Context) []Outcome {
	return o.run(ctx, false)
}

// Status is ScanOnce with every monitor in read-only mode: no writes, no
// notifications.
func (o *Orchestrator) Status(ctx context.Context) []Outcome {
	return o.run(ctx, true)
}

func (o *Orchestrator) run(ctx context.Context, readOnly bool) []Outcome {
	outcomes := make([]Outcome, 0, len(o.chains))
	for _, spec := range o.chains {
		if ctx.Err() != nil {
			break
		}
		outcome := o.scanChain(ctx, spec, readOnly)
		outcomes = append(outcomes, outcome)
		if o.onOutcome != nil {
			o.onOutcome(outcome)
		}
	}
	return outcomes
}

func (o *Orchestrator) scanChain(ctx context.Context, spec registry.ChainSpec, readOnly bool) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic during chain scan", "chain", spec.ID, "panic", fmt.Sprint(r))
			outcome = Outcome{Spec: spec, Kind: ScanError,
				ErrKind: chain.KindInternal, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return o.scanner.Scan(ctx, spec, readOnly)
}

// Watch repeats ScanOnce until the context is cancelled. The interval timer
// starts at the end of each scan, so slow scans never overlap. Returns nil
// on clean shutdown.
func (o *Orchestrator) Watch(ctx context.Context, interval time.Duration) error {
	logger.Info("watch loop starting", "interval", interval.String(), "chains", len(o.chains))

	for {
		results := o.ScanOnce(ctx)
		errs := 0
		for _, r := range results {
			if r.IsError() {
				errs++
			}
		}
		logger.Info("scan complete", "chains", len(results), "errors", errs)

		if ctx.Err() != nil {
			logger.Info("watch loop stopping")
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("watch loop stopping")
			return nil
		case <-timer.C:
		}
	}
}
