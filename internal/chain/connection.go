package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/watchdot/watchdot/internal/signer"
)

// SubmissionStatus is the terminal state of a submitted extrinsic.
type SubmissionStatus int

const (
	SubmissionInBlock SubmissionStatus = iota
	SubmissionFinalized
	SubmissionFailed
)

// FailureReason discriminates why a submission failed.
type FailureReason int

const (
	FailureDispatchError FailureReason = iota
	FailureInvalidTransaction
	FailureDropped
	FailureConnectionLost
	FailureTimeout
)

func (r FailureReason) String() string {
	switch r {
	case FailureDispatchError:
		return "dispatch error"
	case FailureInvalidTransaction:
		return "invalid transaction"
	case FailureDropped:
		return "dropped"
	case FailureConnectionLost:
		return "connection lost"
	case FailureTimeout:
		return "timeout"
	}
	return "unknown"
}

// Failure carries the reason a submission did not reach a block. For
// dispatch errors Module and Name identify the on-chain error variant.
type Failure struct {
	Reason  FailureReason
	Module  string
	Name    string
	Message string
}

func (f *Failure) String() string {
	if f.Reason == FailureDispatchError && f.Module != "" {
		return fmt.Sprintf("%s.%s", f.Module, f.Name)
	}
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Reason, f.Message)
	}
	return f.Reason.String()
}

// SubmissionResult reports how a proxy submission ended. InBlock is
// sufficient for the monitor to declare success; Finalized is surfaced in
// logs when observed.
type SubmissionResult struct {
	Status         SubmissionStatus
	BlockHash      string
	ExtrinsicIndex uint32
	Failure        *Failure
}

// InBlock reports whether the extrinsic reached a block and dispatched
// without error.
func (r SubmissionResult) InBlock() bool {
	return r.Status == SubmissionInBlock || r.Status == SubmissionFinalized
}

// Connection is the per-chain facade the monitor drives. All methods may
// suspend on network I/O and honour context cancellation.
type Connection interface {
	// Invulnerables reads the governance-guaranteed collator set.
	Invulnerables(ctx context.Context) ([]Address, error)
	// Candidates reads the bond-ranked candidate list in chain order.
	Candidates(ctx context.Context) ([]CandidateInfo, error)
	// CandidacyBond reads the minimum deposit required to become a candidate.
	CandidacyBond(ctx context.Context) (*big.Int, error)
	// Account reads the balance triple for an account.
	Account(ctx context.Context, who Address) (Balances, error)
	// BuildRegisterAsCandidate builds the CollatorSelection.register_as_candidate call.
	BuildRegisterAsCandidate() (Call, error)
	// BuildUpdateBond builds the CollatorSelection.update_bond call.
	BuildUpdateBond(newBond *big.Int) (Call, error)
	// SubmitProxyCall wraps the inner call in Proxy.proxy(real, NonTransfer, call),
	// signs it with the proxy key using a mortal era, submits it, and waits
	// for inclusion or a terminal failure.
	SubmitProxyCall(ctx context.Context, proxy *signer.Proxy, real Address, call Call) (SubmissionResult, error)
	// Close releases the underlying transport.
	Close()
}

// Dialer opens a connection to one chain endpoint.
type Dialer func(ctx context.Context, rpcURL string, ss58Prefix uint16) (Connection, error)
