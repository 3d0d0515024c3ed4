package monitor

import (
	"context"
	"math"
	"math/big"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdot/watchdot/internal/balance"
	"github.com/watchdot/watchdot/internal/chain"
	"github.com/watchdot/watchdot/internal/notify"
	"github.com/watchdot/watchdot/internal/registry"
	"github.com/watchdot/watchdot/internal/signer"
	"github.com/watchdot/watchdot/internal/testutil"
)

var (
	collatorAddr = chain.Address{0x11}
	otherAddr    = chain.Address{0x22}
	thirdAddr    = chain.Address{0x33}
)

func unit(n float64, decimals uint8) *big.Int {
	d := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	// test constants have at most two decimal places
	scaled := big.NewInt(int64(math.Round(n * 100)))
	out := new(big.Int).Mul(scaled, d)
	return out.Div(out, big.NewInt(100))
}

type registerCall struct{}
type updateBondCall struct{ bond *big.Int }

type submittedWrite struct {
	name string
	bond *big.Int
}

// fakeConn scripts one chain's state. Register moves the collator into the
// candidate list at the minimum bond; update_bond replaces the deposit.
type fakeConn struct {
	invulnerables []chain.Address
	candidates    []chain.CandidateInfo
	minBond       *big.Int
	free          *big.Int
	fee           *big.Int

	readErr     error
	registerRes *chain.SubmissionResult // override default success
	updateRes   *chain.SubmissionResult
	// state transitions scripted for specific scenarios
	candidatesAfterRegister []chain.CandidateInfo
	invulnerableAfterSubmit bool

	writes []submittedWrite
	closed bool
}

func (f *fakeConn) Invulnerables(ctx context.Context) ([]chain.Address, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.invulnerables, nil
}

func (f *fakeConn) Candidates(ctx context.Context) ([]chain.CandidateInfo, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]chain.CandidateInfo, len(f.candidates))
	copy(out, f.candidates)
	return out, nil
}

func (f *fakeConn) CandidacyBond(ctx context.Context) (*big.Int, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.minBond, nil
}

func (f *fakeConn) Account(ctx context.Context, who chain.Address) (chain.Balances, error) {
	if f.readErr != nil {
		return chain.Balances{}, f.readErr
	}
	return chain.Balances{Free: new(big.Int).Set(f.free), Reserved: big.NewInt(0), Frozen: big.NewInt(0)}, nil
}

func (f *fakeConn) BuildRegisterAsCandidate() (chain.Call, error) {
	return registerCall{}, nil
}

func (f *fakeConn) BuildUpdateBond(newBond *big.Int) (chain.Call, error) {
	return updateBondCall{bond: new(big.Int).Set(newBond)}, nil
}

func (f *fakeConn) SubmitProxyCall(ctx context.Context, _ *signer.Proxy, real chain.Address, call chain.Call) (chain.SubmissionResult, error) {
	switch c := call.(type) {
	case registerCall:
		f.writes = append(f.writes, submittedWrite{name: "register_as_candidate"})
		if f.registerRes != nil {
			if f.candidatesAfterRegister != nil {
				f.candidates = f.candidatesAfterRegister
			}
			return *f.registerRes, nil
		}
		f.payFee()
		f.candidates = append(f.candidates, chain.CandidateInfo{Who: real, Deposit: new(big.Int).Set(f.minBond)})
		if f.invulnerableAfterSubmit {
			f.invulnerables = append(f.invulnerables, real)
		}
		return inBlock(), nil
	case updateBondCall:
		f.writes = append(f.writes, submittedWrite{name: "update_bond", bond: c.bond})
		if f.updateRes != nil {
			return *f.updateRes, nil
		}
		f.payFee()
		for i := range f.candidates {
			if f.candidates[i].Who == real {
				f.candidates[i].Deposit = new(big.Int).Set(c.bond)
			}
		}
		return inBlock(), nil
	}
	return chain.SubmissionResult{}, chain.Errorf(chain.KindInternal, "unknown call type")
}

func (f *fakeConn) payFee() {
	if f.fee != nil {
		f.free = new(big.Int).Sub(f.free, f.fee)
	}
}

func (f *fakeConn) Close() { f.closed = true }

func inBlock() chain.SubmissionResult {
	return chain.SubmissionResult{Status: chain.SubmissionInBlock, BlockHash: "0xabc"}
}

func dispatchFailure(module, name string) *chain.SubmissionResult {
	return &chain.SubmissionResult{Status: chain.SubmissionFailed,
		Failure: &chain.Failure{Reason: chain.FailureDispatchError, Module: module, Name: name}}
}

func newScanner(t *testing.T, conn *fakeConn) (*Scanner, *webhookCounter) {
	t.Helper()
	counter := &webhookCounter{}
	srv := testutil.HTTPTestServer(t, counter.handler())
	s := &Scanner{
		Dial: func(ctx context.Context, rpcURL string, prefix uint16) (chain.Connection, error) {
			return conn, nil
		},
		Notifier: notify.New(srv.URL),
		Collators: map[registry.Ecosystem]chain.Address{
			registry.Polkadot: collatorAddr,
			registry.Kusama:   collatorAddr,
		},
	}
	return s, counter
}

type webhookCounter struct {
	mu     sync.Mutex
	bodies []string
}

func (c *webhookCounter) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := testutil.ReadBody(r)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (c *webhookCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func (c *webhookCounter) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		return ""
	}
	return c.bodies[len(c.bodies)-1]
}

func mustChain(t *testing.T, id string) registry.ChainSpec {
	t.Helper()
	spec, ok := registry.ByID(id)
	require.True(t, ok)
	return spec
}

func TestScanInvulnerableDoesNothing(t *testing.T) {
	conn := &fakeConn{
		invulnerables: []chain.Address{collatorAddr, otherAddr},
		minBond:       unit(10, 10),
		free:          unit(100, 10),
	}
	s, hook := newScanner(t, conn)

	out := s.Scan(context.Background(), mustChain(t, "polkadot_assethub"), false)

	assert.Equal(t, AlreadyInvulnerable, out.Kind)
	assert.Empty(t, conn.writes)
	assert.Equal(t, 0, hook.count())
	assert.True(t, conn.closed)
}

func TestScanColdRegistration(t *testing.T) {
	spec := mustChain(t, "polkadot_collectives")
	conn := &fakeConn{
		minBond: unit(10, 10),
		free:    unit(100, 10),
		fee:     big.NewInt(0),
	}
	s, hook := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)

	require.Equal(t, Registered, out.Kind)
	// bond_cap(100, 1) = 99 units
	assert.Equal(t, unit(99, 10).String(), out.Bond.String())

	require.Len(t, conn.writes, 2)
	assert.Equal(t, "register_as_candidate", conn.writes[0].name)
	assert.Equal(t, "update_bond", conn.writes[1].name)
	assert.Equal(t, unit(99, 10).String(), conn.writes[1].bond.String())

	assert.Equal(t, 1, hook.count())
	assert.Contains(t, hook.last(), "Registered as candidate")
}

func TestRegistrationClearsRateLimits(t *testing.T) {
	spec := mustChain(t, "polkadot_collectives")

	// First scan fails to read; the error notification starts a window.
	conn := &fakeConn{readErr: chain.Errorf(chain.KindRPCRead, "metadata mismatch")}
	s, hook := newScanner(t, conn)
	out := s.Scan(context.Background(), spec, false)
	require.Equal(t, ScanError, out.Kind)
	require.Equal(t, 1, hook.count())

	// Recovery: registration succeeds and clears the chain's entries, so a
	// fresh error alerts immediately instead of being suppressed.
	conn.readErr = nil
	conn.minBond = unit(10, 10)
	conn.free = unit(100, 10)
	out = s.Scan(context.Background(), spec, false)
	require.Equal(t, Registered, out.Kind)

	conn.readErr = chain.Errorf(chain.KindRPCRead, "metadata mismatch")
	conn.candidates = nil
	out = s.Scan(context.Background(), spec, false)
	require.Equal(t, ScanError, out.Kind)
	assert.Equal(t, 3, hook.count())
}

func TestScanBondTopUp(t *testing.T) {
	spec := mustChain(t, "kusama_coretime")
	conn := &fakeConn{
		candidates: []chain.CandidateInfo{
			{Who: collatorAddr, Deposit: unit(50, 12)},
			{Who: otherAddr, Deposit: unit(60, 12)},
		},
		minBond: unit(10, 12),
		free:    unit(80, 12),
	}
	s, hook := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)

	require.Equal(t, AlreadyCandidate, out.Kind)
	assert.Equal(t, unit(50, 12).String(), out.CurrentBond.String())
	require.NotNil(t, out.IncreasedTo)
	// bond_cap(80, 0.1) = 79.9 units
	assert.Equal(t, unit(79.9, 12).String(), out.IncreasedTo.String())

	require.Len(t, conn.writes, 1)
	assert.Equal(t, "update_bond", conn.writes[0].name)
	assert.Equal(t, unit(79.9, 12).String(), conn.writes[0].bond.String())

	assert.Equal(t, 1, hook.count())
	assert.Contains(t, hook.last(), "Bond updated")
}

func TestScanCandidateWithinEpsilonNoWrites(t *testing.T) {
	spec := mustChain(t, "kusama_coretime")
	// target = bond_cap(50.05, 0.1) = 49.95; current deposit 49.9;
	// headroom 0.05 < epsilon (one reserve, 0.1) -> no update.
	conn := &fakeConn{
		candidates: []chain.CandidateInfo{{Who: collatorAddr, Deposit: unit(49.9, 12)}},
		minBond:    unit(10, 12),
		free:       unit(50.05, 12),
	}
	s, hook := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)

	assert.Equal(t, AlreadyCandidate, out.Kind)
	assert.Nil(t, out.IncreasedTo)
	assert.Empty(t, conn.writes)
	assert.Equal(t, 0, hook.count())
}

func TestScanInsufficientFunds(t *testing.T) {
	spec := mustChain(t, "polkadot_people")
	conn := &fakeConn{
		minBond: unit(10, 10),
		free:    unit(2, 10),
	}
	s, hook := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)

	require.Equal(t, InsufficientFunds, out.Kind)
	assert.Equal(t, unit(2, 10).String(), out.Have.String())
	// need = min bond + reserve = 11 units
	assert.Equal(t, unit(11, 10).String(), out.Need.String())
	assert.Empty(t, conn.writes)
	assert.Equal(t, 1, hook.count())
	assert.Contains(t, hook.last(), "Insufficient funds")
}

func TestScanFreeEqualsReserve(t *testing.T) {
	spec := mustChain(t, "polkadot_people")
	conn := &fakeConn{
		minBond: unit(10, 10),
		free:    unit(1, 10), // exactly the reserve; want_bond = 0
	}
	s, _ := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)
	assert.Equal(t, InsufficientFunds, out.Kind)
	assert.Empty(t, conn.writes)
}

func TestScanUnsupportedChainNeverDials(t *testing.T) {
	dials := 0
	s := &Scanner{
		Dial: func(ctx context.Context, rpcURL string, prefix uint16) (chain.Connection, error) {
			dials++
			return nil, nil
		},
		Notifier:  notify.New(""),
		Collators: map[registry.Ecosystem]chain.Address{registry.Polkadot: collatorAddr},
	}

	out := s.Scan(context.Background(), mustChain(t, "polkadot_bridgehub"), false)

	assert.Equal(t, SkippedUnsupported, out.Kind)
	assert.Equal(t, 0, dials)
}

func TestScanConnectError(t *testing.T) {
	counter := &webhookCounter{}
	srv := testutil.HTTPTestServer(t, counter.handler())
	s := &Scanner{
		Dial: func(ctx context.Context, rpcURL string, prefix uint16) (chain.Connection, error) {
			return nil, chain.Errorf(chain.KindConnect, "connection refused")
		},
		Notifier:  notify.New(srv.URL),
		Collators: map[registry.Ecosystem]chain.Address{registry.Kusama: collatorAddr},
	}

	out := s.Scan(context.Background(), mustChain(t, "kusama_assethub"), false)
	require.Equal(t, ScanError, out.Kind)
	assert.Equal(t, chain.KindConnect, out.ErrKind)
	assert.Equal(t, 1, counter.count())

	// Read-only scans report the error but never notify.
	out = s.Scan(context.Background(), mustChain(t, "kusama_assethub"), true)
	require.Equal(t, ScanError, out.Kind)
	assert.Equal(t, 1, counter.count())
}

func TestScanAlreadyCandidateDispatchCoercion(t *testing.T) {
	spec := mustChain(t, "polkadot_assethub")
	conn := &fakeConn{
		minBond:     unit(10, 10),
		free:        unit(100, 10),
		registerRes: dispatchFailure("CollatorSelection", "AlreadyCandidate"),
		// The re-read finds us: some earlier submission landed after all.
		candidatesAfterRegister: []chain.CandidateInfo{{Who: collatorAddr, Deposit: unit(10, 10)}},
	}
	s, hook := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)

	require.Equal(t, AlreadyCandidate, out.Kind)
	assert.Equal(t, unit(10, 10).String(), out.CurrentBond.String())
	assert.Nil(t, out.IncreasedTo)
	assert.Equal(t, 0, hook.count())
}

func TestScanCannotCompete(t *testing.T) {
	spec := mustChain(t, "kusama_people")
	conn := &fakeConn{
		candidates: []chain.CandidateInfo{
			{Who: otherAddr, Deposit: unit(40, 12)},
			{Who: thirdAddr, Deposit: unit(60, 12)},
		},
		minBond:     unit(10, 12),
		free:        unit(30, 12), // want = 29.9, below the lowest incumbent's 40
		registerRes: dispatchFailure("CollatorSelection", "TooManyCandidates"),
	}
	s, hook := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)

	require.Equal(t, CannotCompete, out.Kind)
	assert.Equal(t, unit(29.9, 12).String(), out.OurBond.String())
	assert.Equal(t, unit(40, 12).String(), out.LowestBond.String())
	assert.Equal(t, 1, hook.count())
	assert.Contains(t, hook.last(), "Cannot compete")
}

func TestScanTooManyButCompetitiveIsManualAction(t *testing.T) {
	spec := mustChain(t, "kusama_people")
	conn := &fakeConn{
		candidates:  []chain.CandidateInfo{{Who: otherAddr, Deposit: unit(5, 12)}},
		minBond:     unit(1, 12),
		free:        unit(30, 12), // want 29.9 beats the lowest, yet the chain said no
		registerRes: dispatchFailure("CollatorSelection", "TooManyCandidates"),
	}
	s, hook := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)

	require.Equal(t, ManualActionRequired, out.Kind)
	assert.Contains(t, out.Reason, "TooManyCandidates")
	assert.Equal(t, 1, hook.count())
}

func TestScanOtherDispatchErrorIsManualAction(t *testing.T) {
	spec := mustChain(t, "polkadot_coretime")
	conn := &fakeConn{
		minBond:     unit(10, 10),
		free:        unit(100, 10),
		registerRes: dispatchFailure("CollatorSelection", "NoAssociatedValidatorId"),
	}
	s, hook := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)

	require.Equal(t, ManualActionRequired, out.Kind)
	assert.Equal(t, "CollatorSelection.NoAssociatedValidatorId", out.Reason)
	assert.Equal(t, 1, hook.count())
	assert.Contains(t, hook.last(), "Manual action required")
}

func TestScanInvulnerableRaceAfterRegister(t *testing.T) {
	spec := mustChain(t, "polkadot_assethub")
	conn := &fakeConn{
		minBond:                 unit(10, 10),
		free:                    unit(100, 10),
		invulnerableAfterSubmit: true,
	}
	s, _ := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)

	assert.Equal(t, AlreadyInvulnerable, out.Kind)
	// register landed, but no bond grow was attempted after the promotion
	require.Len(t, conn.writes, 1)
	assert.Equal(t, "register_as_candidate", conn.writes[0].name)
}

func TestScanIdempotent(t *testing.T) {
	spec := mustChain(t, "kusama_coretime")
	conn := &fakeConn{
		candidates: []chain.CandidateInfo{{Who: collatorAddr, Deposit: unit(79.9, 12)}},
		minBond:    unit(10, 12),
		free:       unit(80, 12),
	}
	s, hook := newScanner(t, conn)

	first := s.Scan(context.Background(), spec, false)
	second := s.Scan(context.Background(), spec, false)

	assert.Equal(t, AlreadyCandidate, first.Kind)
	assert.Equal(t, AlreadyCandidate, second.Kind)
	assert.Empty(t, conn.writes)
	assert.Equal(t, 0, hook.count())
}

func TestScanReadOnlyNeverWritesOrNotifies(t *testing.T) {
	spec := mustChain(t, "polkadot_collectives")
	conn := &fakeConn{
		minBond: unit(10, 10),
		free:    unit(100, 10), // a writable scan would register here
	}
	s, hook := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, true)

	assert.Equal(t, NotRegistered, out.Kind)
	assert.Equal(t, unit(99, 10).String(), out.TargetBond.String())
	assert.Empty(t, conn.writes)
	assert.Equal(t, 0, hook.count())
}

func TestSubmittedBondReflectsPostFeeBalance(t *testing.T) {
	spec := mustChain(t, "polkadot_collectives")
	fee := unit(0.5, 10)
	conn := &fakeConn{
		minBond: unit(10, 10),
		free:    unit(100, 10),
		fee:     fee,
	}
	s, _ := newScanner(t, conn)

	out := s.Scan(context.Background(), spec, false)

	require.Equal(t, Registered, out.Kind)
	require.Len(t, conn.writes, 2)
	// bond_cap(100 - 0.5, 1) = 98.5 units: recomputed from the re-read balance
	expected := balance.BondCap(new(big.Int).Sub(unit(100, 10), fee), spec.BondReserve)
	assert.Equal(t, expected.String(), conn.writes[1].bond.String())
	assert.Equal(t, expected.String(), out.Bond.String())
}
