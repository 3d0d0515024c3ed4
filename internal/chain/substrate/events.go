package substrate

import (
	"fmt"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/retriever"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/state"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/watchdot/watchdot/internal/chain"
	"github.com/watchdot/watchdot/internal/logger"
)

// dispatchFailure inspects the events of a block for a failed dispatch of
// the extrinsic at the given index. An extrinsic can land in a block and
// still fail, either directly (System.ExtrinsicFailed) or inside the proxy
// wrapper (Proxy.ProxyExecuted carrying an Err result). Returns nil when
// the dispatch succeeded.
func (c *Client) dispatchFailure(blockHash types.Hash, extrinsicIdx uint32) (*chain.Failure, error) {
	retr, err := retriever.NewDefaultEventRetriever(state.NewEventProvider(c.api.RPC.State), c.api.RPC.State)
	if err != nil {
		return nil, fmt.Errorf("create event retriever (metadata): %w", err)
	}

	events, err := retr.GetEvents(blockHash)
	if err != nil {
		return nil, fmt.Errorf("read events of block %s: %w", blockHash.Hex(), err)
	}

	for _, ev := range events {
		if ev.Phase == nil || !ev.Phase.IsApplyExtrinsic || ev.Phase.AsApplyExtrinsic != extrinsicIdx {
			continue
		}
		switch ev.Name {
		case "System.ExtrinsicFailed":
			return c.failureFromFields(ev.Fields), nil
		case "Proxy.ProxyExecuted":
			// The outer proxy call dispatched fine; the inner call's result
			// rides in the event. An Ok result carries no module error.
			if f := c.failureFromFields(ev.Fields); f != nil {
				return f, nil
			}
		}
	}
	return nil, nil
}

// failureFromFields digs a module error out of a decoded event's fields.
// The field tree differs between runtimes, so the walk is tolerant: it
// hunts for a Module variant carrying pallet and error indices. A dispatch
// failure without a recognisable module error maps to an empty module name.
func (c *Client) failureFromFields(fields registry.DecodedFields) *chain.Failure {
	moduleIdx, errorIdx, found := findModuleError(fields)
	if !found {
		if hasErrVariant(fields) {
			return &chain.Failure{Reason: chain.FailureDispatchError, Message: "dispatch failed"}
		}
		return nil
	}

	module, name := c.resolveErrorName(moduleIdx, errorIdx)
	return &chain.Failure{
		Reason:  chain.FailureDispatchError,
		Module:  module,
		Name:    name,
		Message: fmt.Sprintf("%s.%s", module, name),
	}
}

// resolveErrorName maps (pallet index, error index) to names via metadata.
func (c *Client) resolveErrorName(moduleIdx, errorIdx uint8) (string, string) {
	module := fmt.Sprintf("Module(%d)", moduleIdx)
	name := fmt.Sprintf("Error(%d)", errorIdx)

	if c.meta != nil && c.meta.IsMetadataV14 {
		for _, p := range c.meta.AsMetadataV14.Pallets {
			if uint8(p.Index) == moduleIdx {
				module = string(p.Name)
				break
			}
		}
	}

	factory := registry.NewFactory()
	errReg, err := factory.CreateErrorRegistry(c.meta)
	if err != nil {
		logger.Warn("error registry unavailable", "error", err.Error())
		return module, name
	}
	id := registry.ErrorID{ModuleIndex: types.U8(moduleIdx), ErrorIndex: [4]types.U8{types.U8(errorIdx)}}
	if decoder, ok := errReg[id]; ok && decoder.Name != "" {
		name = decoder.Name
		// Registry names come fully qualified on some runtimes.
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
	}
	return module, name
}

// findModuleError walks a decoded field tree for a Module dispatch error.
func findModuleError(fields registry.DecodedFields) (uint8, uint8, bool) {
	for _, f := range fields {
		if f == nil {
			continue
		}
		if isModuleVariant(f.Name) {
			if m, e, ok := moduleErrorIndices(f.Value); ok {
				return m, e, true
			}
		}
		if nested, ok := f.Value.(registry.DecodedFields); ok {
			if m, e, found := findModuleError(nested); found {
				return m, e, found
			}
		}
	}
	return 0, 0, false
}

func isModuleVariant(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "module")
}

// moduleErrorIndices extracts the pallet and error indices from a Module
// variant payload, whose shape is {index: u8, error: [u8; 4]}.
func moduleErrorIndices(value interface{}) (uint8, uint8, bool) {
	fields, ok := value.(registry.DecodedFields)
	if !ok {
		return 0, 0, false
	}

	var moduleIdx, errorIdx uint8
	var haveModule, haveError bool
	for _, f := range fields {
		if f == nil {
			continue
		}
		lower := strings.ToLower(f.Name)
		switch {
		case strings.Contains(lower, "index"):
			if v, ok := asUint8(f.Value); ok {
				moduleIdx = v
				haveModule = true
			}
		case strings.Contains(lower, "error"):
			if v, ok := firstByte(f.Value); ok {
				errorIdx = v
				haveError = true
			}
		}
	}
	return moduleIdx, errorIdx, haveModule && haveError
}

// hasErrVariant reports whether the field tree contains an Err result arm.
func hasErrVariant(fields registry.DecodedFields) bool {
	for _, f := range fields {
		if f == nil {
			continue
		}
		lower := strings.ToLower(f.Name)
		if lower == "err" || strings.Contains(lower, "dispatch_error") || strings.Contains(lower, "dispatcherror") {
			return true
		}
		if nested, ok := f.Value.(registry.DecodedFields); ok && hasErrVariant(nested) {
			return true
		}
	}
	return false
}

func asUint8(v interface{}) (uint8, bool) {
	switch n := v.(type) {
	case types.U8:
		return uint8(n), true
	case uint8:
		return n, true
	case types.U32:
		return uint8(n), true
	case uint32:
		return uint8(n), true
	}
	return 0, false
}

func firstByte(v interface{}) (uint8, bool) {
	switch b := v.(type) {
	case []types.U8:
		if len(b) > 0 {
			return uint8(b[0]), true
		}
	case []uint8:
		if len(b) > 0 {
			return b[0], true
		}
	case types.U8:
		return uint8(b), true
	case registry.DecodedFields:
		// error wrapped one level deeper, e.g. {error: {0: [u8;4]}}
		for _, f := range b {
			if f == nil {
				continue
			}
			if n, ok := firstByte(f.Value); ok {
				return n, ok
			}
		}
	}
	return 0, false
}
