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

// Package substrate implements the chain connection contract over the
// substrate RPC protocol using go-substrate-rpc-client's dynamic metadata.
package substrate

import (
	"context"
	"fmt"
	"math/big"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/watchdot/watchdot/internal/chain"
	"github.com/watchdot/watchdot/internal/logger"
	"github.com/watchdot/watchdot/internal/signer"
)

const (
	palletCollatorSelection = "CollatorSelection"
	palletProxy             = "Proxy"
	palletSystem            = "System"
)

// Client talks to one parachain node. It satisfies chain.Connection.
type Client struct {
	api         *gsrpc.SubstrateAPI
	meta        *types.Metadata
	genesisHash types.Hash
	ss58Prefix  uint16
	rpcURL      string
}

// Dial connects to a chain endpoint and loads its metadata. Metadata
// mismatches later surface as RpcReadError mentioning "metadata".
func Dial(ctx context.Context, rpcURL string, ss58Prefix uint16) (chain.Connection, error) {
	c := &Client{ss58Prefix: ss58Prefix, rpcURL: rpcURL}

	err := await(ctx, chain.KindConnect, func() error {
		api, err := gsrpc.NewSubstrateAPI(rpcURL)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", rpcURL, err)
		}
		c.api = api

		meta, err := api.RPC.State.GetMetadataLatest()
		if err != nil {
			return fmt.Errorf("load metadata from %s: %w", rpcURL, err)
		}
		c.meta = meta

		genesis, err := api.RPC.Chain.GetBlockHash(0)
		if err != nil {
			return fmt.Errorf("read genesis hash from %s: %w", rpcURL, err)
		}
		c.genesisHash = genesis
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("connected", "rpc_url", rpcURL)
	return c, nil
}

// Close releases the websocket. gsrpc has no explicit close on the API
// facade; dropping the reference lets the transport wind down.
func (c *Client) Close() {
	c.api = nil
}

func (c *Client) Invulnerables(ctx context.Context) ([]chain.Address, error) {
	var list []types.AccountID
	err := c.readStorage(ctx, palletCollatorSelection, "Invulnerables", nil, &list, false)
	if err != nil {
		return nil, err
	}

	out := make([]chain.Address, 0, len(list))
	for _, id := range list {
		var a chain.Address
		copy(a[:], id[:])
		out = append(out, a)
	}
	return out, nil
}

func (c *Client) Candidates(ctx context.Context) ([]chain.CandidateInfo, error) {
	var list []candidateEntry
	err := c.readStorage(ctx, palletCollatorSelection, "CandidateList", nil, &list, false)
	if err != nil {
		return nil, err
	}

	out := make([]chain.CandidateInfo, 0, len(list))
	for _, e := range list {
		var a chain.Address
		copy(a[:], e.Who[:])
		out = append(out, chain.CandidateInfo{Who: a, Deposit: u128ToBig(e.Deposit)})
	}
	return out, nil
}

func (c *Client) CandidacyBond(ctx context.Context) (*big.Int, error) {
	var bond types.U128
	err := c.readStorage(ctx, palletCollatorSelection, "CandidacyBond", nil, &bond, true)
	if err != nil {
		return nil, err
	}
	return u128ToBig(bond), nil
}

func (c *Client) Account(ctx context.Context, who chain.Address) (chain.Balances, error) {
	var info accountInfo
	err := c.readStorage(ctx, palletSystem, "Account", who[:], &info, false)
	if err != nil {
		return chain.Balances{}, err
	}
	return chain.Balances{
		Free:     u128ToBig(info.Data.Free),
		Reserved: u128ToBig(info.Data.Reserved),
		Frozen:   u128ToBig(info.Data.Frozen),
	}, nil
}

func (c *Client) BuildRegisterAsCandidate() (chain.Call, error) {
	call, err := types.NewCall(c.meta, palletCollatorSelection+".register_as_candidate")
	if err != nil {
		return nil, chain.Errorf(chain.KindRPCRead, "build register_as_candidate (metadata): %v", err)
	}
	return call, nil
}

func (c *Client) BuildUpdateBond(newBond *big.Int) (chain.Call, error) {
	call, err := types.NewCall(c.meta, palletCollatorSelection+".update_bond", types.NewU128(*newBond))
	if err != nil {
		return nil, chain.Errorf(chain.KindRPCRead, "build update_bond (metadata): %v", err)
	}
	return call, nil
}

// SubmitProxyCall wraps the inner call in Proxy.proxy with a forced
// NonTransfer proxy type, signs with a mortal era, submits, and waits for
// inclusion or a terminal failure.
func (c *Client) SubmitProxyCall(ctx context.Context, proxy *signer.Proxy, real chain.Address, call chain.Call) (chain.SubmissionResult, error) {
	innerCall, ok := call.(types.Call)
	if !ok {
		return chain.SubmissionResult{}, chain.Errorf(chain.KindInternal, "call was not built by this connection")
	}

	keyring, err := proxy.Keyring(c.ss58Prefix)
	if err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindSigning, err)
	}

	realAddr, err := types.NewMultiAddressFromAccountID(real[:])
	if err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindInternal, err)
	}

	proxyCall, err := types.NewCall(c.meta, palletProxy+".proxy",
		realAddr, someProxyType(proxyNonTransfer), innerCall)
	if err != nil {
		return chain.SubmissionResult{}, chain.Errorf(chain.KindRPCRead, "build proxy call (metadata): %v", err)
	}

	var result chain.SubmissionResult
	err = await(ctx, chain.KindConnect, func() error {
		var err error
		result, err = c.signAndWatch(ctx, keyring, proxyCall)
		return err
	})
	if err != nil {
		// Context expiry while awaiting inclusion is a submission timeout,
		// not a connection problem.
		if ctx.Err() != nil {
			return chain.SubmissionResult{
				Status:  chain.SubmissionFailed,
				Failure: &chain.Failure{Reason: chain.FailureTimeout, Message: "no inclusion before deadline"},
			}, nil
		}
		return chain.SubmissionResult{}, err
	}
	return result, nil
}

func (c *Client) signAndWatch(ctx context.Context, keyring signature.KeyringPair, call types.Call) (chain.SubmissionResult, error) {
	nonce, err := c.accountNonce(keyring.PublicKey)
	if err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindRPCRead, err)
	}

	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindRPCRead, err)
	}

	header, err := c.api.RPC.Chain.GetHeaderLatest()
	if err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindRPCRead, err)
	}
	birthHash, err := c.api.RPC.Chain.GetBlockHash(uint64(header.Number))
	if err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindRPCRead, err)
	}

	ext := types.NewExtrinsic(call)
	opts := types.SignatureOptions{
		BlockHash:          birthHash,
		Era:                mortalEra(uint64(header.Number), defaultEraPeriod),
		GenesisHash:        c.genesisHash,
		Nonce:              types.NewUCompactFromUInt(uint64(nonce)),
		SpecVersion:        rv.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	}
	if err := ext.Sign(keyring, opts); err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindSigning, err)
	}

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindConnect, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case status, ok := <-sub.Chan():
			if !ok {
				return chain.SubmissionResult{
					Status:  chain.SubmissionFailed,
					Failure: &chain.Failure{Reason: chain.FailureConnectionLost, Message: "status stream closed"},
				}, nil
			}
			switch {
			case status.IsInBlock:
				return c.inclusionResult(status.AsInBlock, ext, chain.SubmissionInBlock)
			case status.IsFinalized:
				return c.inclusionResult(status.AsFinalized, ext, chain.SubmissionFinalized)
			case status.IsDropped:
				return failed(chain.FailureDropped, "dropped from the transaction pool"), nil
			case status.IsUsurped:
				return failed(chain.FailureDropped, "usurped by another transaction"), nil
			case status.IsInvalid:
				return failed(chain.FailureInvalidTransaction, "rejected as invalid"), nil
			case status.IsFinalityTimeout:
				return failed(chain.FailureTimeout, "finality timeout"), nil
			}
			// Ready/Broadcast: keep waiting.
		case err := <-sub.Err():
			return chain.SubmissionResult{
				Status:  chain.SubmissionFailed,
				Failure: &chain.Failure{Reason: chain.FailureConnectionLost, Message: err.Error()},
			}, nil
		case <-ctx.Done():
			// Once broadcast, the mortal era bounds any replay; report timeout.
			return failed(chain.FailureTimeout, "no inclusion before deadline"), nil
		}
	}
}

// inclusionResult checks the block's events for a dispatch failure of our
// extrinsic, including errors surfaced through Proxy.ProxyExecuted.
func (c *Client) inclusionResult(blockHash types.Hash, ext types.Extrinsic, status chain.SubmissionStatus) (chain.SubmissionResult, error) {
	idx, err := c.extrinsicIndex(blockHash, ext)
	if err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindRPCRead, err)
	}

	failure, err := c.dispatchFailure(blockHash, idx)
	if err != nil {
		return chain.SubmissionResult{}, chain.NewError(chain.KindRPCRead, err)
	}
	if failure != nil {
		return chain.SubmissionResult{Status: chain.SubmissionFailed, Failure: failure}, nil
	}

	return chain.SubmissionResult{
		Status:         status,
		BlockHash:      blockHash.Hex(),
		ExtrinsicIndex: idx,
	}, nil
}

// extrinsicIndex locates our extrinsic in the block by encoded identity.
func (c *Client) extrinsicIndex(blockHash types.Hash, ext types.Extrinsic) (uint32, error) {
	block, err := c.api.RPC.Chain.GetBlock(blockHash)
	if err != nil {
		return 0, fmt.Errorf("read block %s: %w", blockHash.Hex(), err)
	}

	target, err := codec.EncodeToHex(ext)
	if err != nil {
		return 0, fmt.Errorf("encode extrinsic: %w", err)
	}

	for i := range block.Block.Extrinsics {
		enc, err := codec.EncodeToHex(block.Block.Extrinsics[i])
		if err != nil {
			continue
		}
		if enc == target {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("extrinsic not found in block %s", blockHash.Hex())
}

func (c *Client) accountNonce(pubKey []byte) (uint32, error) {
	var info accountInfo
	key, err := types.CreateStorageKey(c.meta, palletSystem, "Account", pubKey)
	if err != nil {
		return 0, fmt.Errorf("build account storage key (metadata): %w", err)
	}
	_, err = c.api.RPC.State.GetStorageLatest(key, &info)
	if err != nil {
		return 0, fmt.Errorf("read proxy account nonce: %w", err)
	}
	return uint32(info.Nonce), nil
}

// readStorage reads one storage value. A missing value is an error only
// when required; otherwise the target keeps its zero value.
func (c *Client) readStorage(ctx context.Context, pallet, item string, arg []byte, target interface{}, required bool) error {
	return await(ctx, chain.KindRPCRead, func() error {
		var key types.StorageKey
		var err error
		if arg != nil {
			key, err = types.CreateStorageKey(c.meta, pallet, item, arg)
		} else {
			key, err = types.CreateStorageKey(c.meta, pallet, item)
		}
		if err != nil {
			return fmt.Errorf("build %s.%s storage key (metadata): %w", pallet, item, err)
		}

		ok, err := c.api.RPC.State.GetStorageLatest(key, target)
		if err != nil {
			return fmt.Errorf("read %s.%s: %w", pallet, item, err)
		}
		if !ok && required {
			return fmt.Errorf("%s.%s not present in storage", pallet, item)
		}
		return nil
	})
}

func failed(reason chain.FailureReason, message string) chain.SubmissionResult {
	return chain.SubmissionResult{
		Status:  chain.SubmissionFailed,
		Failure: &chain.Failure{Reason: reason, Message: message},
	}
}

func u128ToBig(v types.U128) *big.Int {
	if v.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.Int)
}

// await runs fn on its own goroutine so a stalled RPC honours the context
// deadline. The abandoned goroutine finishes against a dead transport.
func await(ctx context.Context, kind chain.ErrorKind, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			return chain.NewError(kind, err)
		}
		return nil
	case <-ctx.Done():
		return chain.NewError(kind, ctx.Err())
	}
}
