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

// Package monitor implements the per-chain collator state machine and the
// orchestration across chains. A scan classifies the collator's status from
// a fresh observation, performs at most the writes needed to restore or
// improve candidacy, and emits rate-limited notifications.
package monitor

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/watchdot/watchdot/internal/balance"
	"github.com/watchdot/watchdot/internal/chain"
	"github.com/watchdot/watchdot/internal/logger"
	"github.com/watchdot/watchdot/internal/metrics"
	"github.com/watchdot/watchdot/internal/notify"
	"github.com/watchdot/watchdot/internal/registry"
	"github.com/watchdot/watchdot/internal/signer"
)

const (
	// DefaultCallTimeout bounds a single RPC read.
	DefaultCallTimeout = 60 * time.Second
	// DefaultInclusionTimeout bounds the wait for an extrinsic to reach a block.
	DefaultInclusionTimeout = 5 * time.Minute
)

// Scanner holds everything a per-chain scan needs. It is borrowed by one
// chain at a time; scans are strictly sequential.
type Scanner struct {
	Dial      chain.Dialer
	Proxy     *signer.Proxy
	Notifier  *notify.Dispatcher
	Collators map[registry.Ecosystem]chain.Address

	CallTimeout      time.Duration
	InclusionTimeout time.Duration
}

func (s *Scanner) callTimeout() time.Duration {
	if s.CallTimeout > 0 {
		return s.CallTimeout
	}
	return DefaultCallTimeout
}

func (s *Scanner) inclusionTimeout() time.Duration {
	if s.InclusionTimeout > 0 {
		return s.InclusionTimeout
	}
	return DefaultInclusionTimeout
}

// observation is one consistent snapshot of the chain state the scan needs.
type observation struct {
	invulnerables []chain.Address
	candidates    []chain.CandidateInfo
	minBond       *big.Int
	account       chain.Balances
}

func (o *observation) isInvulnerable(who chain.Address) bool {
	for _, a := range o.invulnerables {
		if a == who {
			return true
		}
	}
	return false
}

func (o *observation) candidate(who chain.Address) *chain.CandidateInfo {
	for i := range o.candidates {
		if o.candidates[i].Who == who {
			return &o.candidates[i]
		}
	}
	return nil
}

// lowestIncumbent returns the candidate with the smallest non-zero deposit.
func (o *observation) lowestIncumbent() *chain.CandidateInfo {
	var lowest *chain.CandidateInfo
	for i := range o.candidates {
		c := &o.candidates[i]
		if c.Deposit == nil || c.Deposit.Sign() <= 0 {
			continue
		}
		if lowest == nil || c.Deposit.Cmp(lowest.Deposit) < 0 {
			lowest = c
		}
	}
	return lowest
}

// Scan runs the state machine for one chain. With readOnly set it performs
// no writes and emits no notifications; read errors are still reported in
// the outcome.
func (s *Scanner) Scan(ctx context.Context, spec registry.ChainSpec, readOnly bool) Outcome {
	outcome := s.scan(ctx, spec, readOnly)
	metrics.ScansTotal.WithLabelValues(spec.ID, string(outcome.Kind)).Inc()
	return outcome
}

func (s *Scanner) scan(ctx context.Context, spec registry.ChainSpec, readOnly bool) Outcome {
	log := logger.With("chain", spec.ID)

	if !spec.SupportsProxyRegistration {
		log.Debug("chain does not support proxy registration, skipping")
		return Outcome{Spec: spec, Kind: SkippedUnsupported}
	}

	collator, ok := s.Collators[spec.Ecosystem]
	if !ok {
		return s.errorOutcome(spec, readOnly,
			chain.Errorf(chain.KindConfig, "no collator address configured for %s", spec.Ecosystem))
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.callTimeout())
	conn, err := s.Dial(dialCtx, spec.RPCURL, spec.Ecosystem.SS58Prefix())
	cancel()
	if err != nil {
		return s.errorOutcome(spec, readOnly, chain.NewError(chain.KindConnect, err))
	}
	defer conn.Close()

	obs, err := s.observe(ctx, conn, collator)
	if err != nil {
		return s.errorOutcome(spec, readOnly, chain.NewError(chain.KindRPCRead, err))
	}

	target := balance.BondCap(obs.account.Free, spec.BondReserve)
	log.Debug("observation",
		"free", obs.account.Free.String(),
		"min_bond", obs.minBond.String(),
		"target_bond", target.String(),
		"candidates", len(obs.candidates))

	if obs.isInvulnerable(collator) {
		log.Info("collator is invulnerable, nothing to do")
		return Outcome{Spec: spec, Kind: AlreadyInvulnerable,
			FreeBalance: obs.account.Free, TargetBond: target}
	}

	if c := obs.candidate(collator); c != nil {
		return s.scanCandidate(ctx, spec, conn, collator, obs, c, target, readOnly)
	}

	return s.scanUnregistered(ctx, spec, conn, collator, obs, target, readOnly)
}

// scanCandidate handles the already-a-candidate branch: top the bond up to
// the cap when the headroom exceeds epsilon, otherwise leave it alone.
func (s *Scanner) scanCandidate(
	ctx context.Context,
	spec registry.ChainSpec,
	conn chain.Connection,
	collator chain.Address,
	obs *observation,
	cand *chain.CandidateInfo,
	target *big.Int,
	readOnly bool,
) Outcome {
	log := logger.With("chain", spec.ID)

	base := Outcome{Spec: spec, Kind: AlreadyCandidate, CurrentBond: cand.Deposit,
		FreeBalance: obs.account.Free, TargetBond: target}

	// Epsilon guards against thrashing on small balance movements; one bond
	// reserve comfortably covers transaction fees on every supported chain.
	threshold := balance.Add(cand.Deposit, s.epsilon(spec))
	if balance.Cmp(target, threshold) <= 0 {
		log.Debug("bond within epsilon of target, no update",
			"current", cand.Deposit.String(), "target", target.String())
		return base
	}

	if readOnly {
		return base
	}

	log.Info("increasing candidacy bond",
		"current", cand.Deposit.String(), "target", target.String())

	res, err := s.submit(ctx, spec, conn, collator, "update_bond", func() (chain.Call, error) {
		return conn.BuildUpdateBond(target)
	})
	if err != nil {
		return s.errorOutcome(spec, readOnly, err)
	}
	if !res.InBlock() {
		return s.failureOutcome(ctx, spec, conn, collator, obs, target, res.Failure, readOnly)
	}

	base.IncreasedTo = target
	s.Notifier.Emit(spec.ID, notify.BondUpdated, fmt.Sprintf(
		"*Bond updated* on *%s*\nPrevious: %s\nNew: %s",
		spec.Name,
		balance.Format(cand.Deposit, spec.TokenDecimals, spec.Ecosystem.TokenSymbol()),
		balance.Format(target, spec.TokenDecimals, spec.Ecosystem.TokenSymbol())))
	return base
}

// scanUnregistered handles the not-registered branch: register and then grow
// the bond to the cap, or report why registration is impossible.
func (s *Scanner) scanUnregistered(
	ctx context.Context,
	spec registry.ChainSpec,
	conn chain.Connection,
	collator chain.Address,
	obs *observation,
	want *big.Int,
	readOnly bool,
) Outcome {
	log := logger.With("chain", spec.ID)
	symbol := spec.Ecosystem.TokenSymbol()

	if readOnly {
		return Outcome{Spec: spec, Kind: NotRegistered,
			FreeBalance: obs.account.Free, TargetBond: want}
	}

	if balance.Cmp(want, obs.minBond) < 0 {
		need := balance.Add(obs.minBond, spec.BondReserve)
		log.Warn("insufficient funds to register",
			"have", obs.account.Free.String(), "need", need.String())
		s.Notifier.Emit(spec.ID, notify.InsufficientFunds, fmt.Sprintf(
			"*Insufficient funds* on *%s*\nAvailable: %s\nRequired: %s\nPlease add funds to register as a candidate.",
			spec.Name,
			balance.Format(obs.account.Free, spec.TokenDecimals, symbol),
			balance.Format(need, spec.TokenDecimals, symbol)))
		return Outcome{Spec: spec, Kind: InsufficientFunds,
			Have: obs.account.Free, Need: need,
			FreeBalance: obs.account.Free, TargetBond: want}
	}

	log.Info("registering as candidate", "bond", want.String())

	res, err := s.submit(ctx, spec, conn, collator, "register_as_candidate", func() (chain.Call, error) {
		return conn.BuildRegisterAsCandidate()
	})
	if err != nil {
		return s.errorOutcome(spec, readOnly, err)
	}
	if !res.InBlock() {
		return s.failureOutcome(ctx, spec, conn, collator, obs, want, res.Failure, readOnly)
	}

	// The registration fee changed the balance; re-read and recompute before
	// growing the bond.
	obs2, err := s.observe(ctx, conn, collator)
	if err != nil {
		// Registration landed; report it even though the follow-up read failed.
		logger.Warn("post-registration read failed", "chain", spec.ID, "error", err.Error())
		s.notifyRegistered(spec, obs.minBond)
		return Outcome{Spec: spec, Kind: Registered, Bond: obs.minBond,
			FreeBalance: obs.account.Free, TargetBond: want}
	}

	if obs2.isInvulnerable(collator) {
		// Governance promoted us mid-scan; nothing further to do.
		log.Info("collator became invulnerable during scan")
		return Outcome{Spec: spec, Kind: AlreadyInvulnerable,
			FreeBalance: obs2.account.Free, TargetBond: want}
	}

	posted := obs.minBond
	if c := obs2.candidate(collator); c != nil {
		posted = c.Deposit
	}

	want2 := balance.BondCap(obs2.account.Free, spec.BondReserve)
	if balance.Cmp(want2, posted) != 0 && want2.Sign() > 0 {
		log.Info("growing bond after registration",
			"posted", posted.String(), "target", want2.String())
		res, err := s.submit(ctx, spec, conn, collator, "update_bond", func() (chain.Call, error) {
			return conn.BuildUpdateBond(want2)
		})
		if err == nil && res.InBlock() {
			posted = want2
		} else {
			// Registration itself succeeded; the grow retries next scan.
			logger.Warn("bond grow after registration failed", "chain", spec.ID)
		}
	}

	s.notifyRegistered(spec, posted)
	return Outcome{Spec: spec, Kind: Registered, Bond: posted,
		FreeBalance: obs2.account.Free, TargetBond: want2}
}

func (s *Scanner) notifyRegistered(spec registry.ChainSpec, bond *big.Int) {
	s.Notifier.Emit(spec.ID, notify.RegistrationSuccess, fmt.Sprintf(
		"*Registered as candidate* on *%s*\nBond: %s",
		spec.Name, balance.Format(bond, spec.TokenDecimals, spec.Ecosystem.TokenSymbol())))
}

// failureOutcome maps a terminal submission failure to an outcome, applying
// the dispatch-error coercions: "already a candidate" is not an error,
// "too many candidates" means we must out-bid the lowest incumbent, and
// everything else needs an operator.
func (s *Scanner) failureOutcome(
	ctx context.Context,
	spec registry.ChainSpec,
	conn chain.Connection,
	collator chain.Address,
	obs *observation,
	want *big.Int,
	failure *chain.Failure,
	readOnly bool,
) Outcome {
	if failure == nil {
		return s.errorOutcome(spec, readOnly,
			chain.Errorf(chain.KindInternal, "submission failed without a reason"))
	}

	symbol := spec.Ecosystem.TokenSymbol()

	switch failure.Reason {
	case chain.FailureDispatchError:
		name := failure.Name
		switch {
		case strings.Contains(name, "AlreadyCandidate"):
			// Raced with our own earlier registration; confirm with one re-read.
			if fresh, err := s.readCandidates(ctx, conn); err == nil {
				for i := range fresh {
					if fresh[i].Who == collator {
						return Outcome{Spec: spec, Kind: AlreadyCandidate,
							CurrentBond: fresh[i].Deposit,
							FreeBalance: obs.account.Free, TargetBond: want}
					}
				}
			}
			return s.manualAction(spec, failure.String(), readOnly, obs, want)
		case strings.Contains(name, "AlreadyInvulnerable"):
			return Outcome{Spec: spec, Kind: AlreadyInvulnerable,
				FreeBalance: obs.account.Free, TargetBond: want}
		case strings.Contains(name, "TooManyCandidates"):
			lowest := obs.lowestIncumbent()
			if lowest != nil && balance.Cmp(want, lowest.Deposit) <= 0 {
				s.Notifier.Emit(spec.ID, notify.CannotCompete, fmt.Sprintf(
					"*Cannot compete* on *%s*\nAvailable bond: %s\nLowest incumbent bond: %s\nPlease add funds to out-bid the lowest candidate.",
					spec.Name,
					balance.Format(want, spec.TokenDecimals, symbol),
					balance.Format(lowest.Deposit, spec.TokenDecimals, symbol)))
				return Outcome{Spec: spec, Kind: CannotCompete,
					OurBond: want, LowestBond: lowest.Deposit,
					FreeBalance: obs.account.Free, TargetBond: want}
			}
			return s.manualAction(spec, failure.String(), readOnly, obs, want)
		default:
			return s.manualAction(spec, failure.String(), readOnly, obs, want)
		}
	case chain.FailureTimeout:
		return s.errorOutcome(spec, readOnly,
			chain.Errorf(chain.KindSubmissionTimeout, "no inclusion before timeout"))
	case chain.FailureConnectionLost:
		return s.errorOutcome(spec, readOnly,
			chain.Errorf(chain.KindConnect, "connection lost while awaiting inclusion"))
	default:
		return s.errorOutcome(spec, readOnly,
			chain.Errorf(chain.KindInternal, "submission failed: %s", failure.String()))
	}
}

func (s *Scanner) manualAction(spec registry.ChainSpec, reason string, readOnly bool, obs *observation, want *big.Int) Outcome {
	if !readOnly {
		s.Notifier.Emit(spec.ID, notify.ManualActionRequired, fmt.Sprintf(
			"*Manual action required* on *%s*\nThe chain rejected the automatic call: %s\nPlease resolve via polkadot.js.",
			spec.Name, reason))
	}
	return Outcome{Spec: spec, Kind: ManualActionRequired, Reason: reason,
		FreeBalance: obs.account.Free, TargetBond: want}
}

func (s *Scanner) errorOutcome(spec registry.ChainSpec, readOnly bool, err error) Outcome {
	kind := chain.KindOf(err)
	logger.Error("chain scan failed", "chain", spec.ID, "kind", string(kind), "error", err.Error())
	if !readOnly {
		s.Notifier.Emit(spec.ID, notify.Error, fmt.Sprintf(
			"*Error* on *%s*\n`%s`", spec.Name, err.Error()))
	}
	return Outcome{Spec: spec, Kind: ScanError, ErrKind: kind, Message: err.Error()}
}

// epsilon is the bond headroom below which no update is submitted. Fixed at
// one bond reserve rather than a fee estimate; see DESIGN.md.
func (s *Scanner) epsilon(spec registry.ChainSpec) *big.Int {
	return spec.BondReserve
}

func (s *Scanner) observe(ctx context.Context, conn chain.Connection, collator chain.Address) (*observation, error) {
	obs := &observation{}

	err := s.read(ctx, func(c context.Context) error {
		var err error
		obs.invulnerables, err = conn.Invulnerables(c)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read invulnerables: %w", err)
	}

	err = s.read(ctx, func(c context.Context) error {
		var err error
		obs.candidates, err = conn.Candidates(c)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}

	err = s.read(ctx, func(c context.Context) error {
		var err error
		obs.minBond, err = conn.CandidacyBond(c)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read candidacy bond: %w", err)
	}

	err = s.read(ctx, func(c context.Context) error {
		var err error
		obs.account, err = conn.Account(c, collator)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read account: %w", err)
	}

	return obs, nil
}

func (s *Scanner) readCandidates(ctx context.Context, conn chain.Connection) ([]chain.CandidateInfo, error) {
	var out []chain.CandidateInfo
	err := s.read(ctx, func(c context.Context) error {
		var err error
		out, err = conn.Candidates(c)
		return err
	})
	return out, err
}

func (s *Scanner) read(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout())
	defer cancel()
	return fn(callCtx)
}

// submit signs and submits one proxy-wrapped call and waits for inclusion or
// a terminal failure. Once broadcast the wait is not cancellable short of
// the inclusion timeout; a mortal era bounds any dropped transaction.
func (s *Scanner) submit(
	ctx context.Context,
	spec registry.ChainSpec,
	conn chain.Connection,
	collator chain.Address,
	callName string,
	build func() (chain.Call, error),
) (chain.SubmissionResult, error) {
	call, err := build()
	if err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindInternal, err)
	}

	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.inclusionTimeout())
	defer cancel()

	res, err := conn.SubmitProxyCall(subCtx, s.Proxy, collator, call)
	status := "in_block"
	if err != nil {
		status = "error"
	} else if !res.InBlock() {
		status = "failed"
	} else if res.Status == chain.SubmissionFinalized {
		status = "finalized"
	}
	metrics.SubmissionsTotal.WithLabelValues(spec.ID, callName, status).Inc()

	if err != nil {
		return chain.SubmissionResult{}, err
	}
	if res.Status == chain.SubmissionFinalized {
		logger.Info("extrinsic finalized", "chain", spec.ID, "call", callName, "block", res.BlockHash)
	} else if res.InBlock() {
		logger.Info("extrinsic in block", "chain", spec.ID, "call", callName, "block", res.BlockHash)
	}
	return res, nil
}
