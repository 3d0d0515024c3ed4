package monitor

import (
	"fmt"
	"math/big"

	"github.com/watchdot/watchdot/internal/balance"
	"github.com/watchdot/watchdot/internal/chain"
	"github.com/watchdot/watchdot/internal/registry"
)

// OutcomeKind tags the result of one chain scan. Exactly one kind applies.
type OutcomeKind string

const (
	AlreadyInvulnerable  OutcomeKind = "AlreadyInvulnerable"
	AlreadyCandidate     OutcomeKind = "AlreadyCandidate"
	Registered           OutcomeKind = "Registered"
	SkippedUnsupported   OutcomeKind = "SkippedUnsupported"
	InsufficientFunds    OutcomeKind = "InsufficientFunds"
	CannotCompete        OutcomeKind = "CannotCompete"
	ManualActionRequired OutcomeKind = "ManualActionRequired"
	NotRegistered        OutcomeKind = "NotRegistered"
	ScanError            OutcomeKind = "Error"
)

// Outcome is the result of scanning one chain. Kind selects which of the
// optional fields are meaningful.
type Outcome struct {
	Spec registry.ChainSpec
	Kind OutcomeKind

	// AlreadyCandidate
	CurrentBond *big.Int
	IncreasedTo *big.Int // nil when no bond change was needed

	// Registered
	Bond *big.Int

	// InsufficientFunds
	Have *big.Int
	Need *big.Int

	// CannotCompete
	OurBond    *big.Int
	LowestBond *big.Int

	// ManualActionRequired
	Reason string

	// Error
	ErrKind chain.ErrorKind
	Message string

	// Read observations, populated whenever the chain was reachable. Used
	// by the status table and the dashboard.
	FreeBalance *big.Int
	TargetBond  *big.Int
}

func (o Outcome) fmtAmount(v *big.Int) string {
	return balance.Format(v, o.Spec.TokenDecimals, o.Spec.Ecosystem.TokenSymbol())
}

// IsError reports whether the scan ended in an error outcome.
func (o Outcome) IsError() bool {
	return o.Kind == ScanError
}

// StatusLabel renders the short status cell for the status table.
func (o Outcome) StatusLabel() string {
	switch o.Kind {
	case AlreadyInvulnerable:
		return "invulnerable"
	case AlreadyCandidate:
		return fmt.Sprintf("candidate(bond=%s)", o.fmtAmount(o.CurrentBond))
	case Registered:
		return fmt.Sprintf("candidate(bond=%s)", o.fmtAmount(o.Bond))
	case SkippedUnsupported:
		return "unsupported"
	case InsufficientFunds, CannotCompete, NotRegistered:
		return "not-registered"
	case ManualActionRequired:
		return "manual-action"
	case ScanError:
		return fmt.Sprintf("error(%s)", o.ErrKind)
	}
	return string(o.Kind)
}

// Describe renders the one-line report used by the check command.
func (o Outcome) Describe() string {
	switch o.Kind {
	case AlreadyInvulnerable:
		return fmt.Sprintf("%s: invulnerable collator, nothing to do", o.Spec.ID)
	case AlreadyCandidate:
		if o.IncreasedTo != nil {
			return fmt.Sprintf("%s: candidate, bond increased %s -> %s",
				o.Spec.ID, o.fmtAmount(o.CurrentBond), o.fmtAmount(o.IncreasedTo))
		}
		return fmt.Sprintf("%s: candidate with bond %s, nothing to do",
			o.Spec.ID, o.fmtAmount(o.CurrentBond))
	case Registered:
		return fmt.Sprintf("%s: registered as candidate with bond %s",
			o.Spec.ID, o.fmtAmount(o.Bond))
	case SkippedUnsupported:
		return fmt.Sprintf("%s: skipped, no proxy registration support", o.Spec.ID)
	case InsufficientFunds:
		return fmt.Sprintf("%s: insufficient funds, have %s, need %s",
			o.Spec.ID, o.fmtAmount(o.Have), o.fmtAmount(o.Need))
	case CannotCompete:
		return fmt.Sprintf("%s: cannot compete, our bond %s vs lowest incumbent %s",
			o.Spec.ID, o.fmtAmount(o.OurBond), o.fmtAmount(o.LowestBond))
	case ManualActionRequired:
		return fmt.Sprintf("%s: manual action required: %s", o.Spec.ID, o.Reason)
	case NotRegistered:
		return fmt.Sprintf("%s: not registered (target bond %s)",
			o.Spec.ID, o.fmtAmount(o.TargetBond))
	case ScanError:
		return fmt.Sprintf("%s: error(%s): %s", o.Spec.ID, o.ErrKind, o.Message)
	}
	return fmt.Sprintf("%s: %s", o.Spec.ID, o.Kind)
}
