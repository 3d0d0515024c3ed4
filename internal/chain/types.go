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

// Package chain defines the narrow contract the watchdog needs from a chain
// connection. Any transport satisfying Connection is acceptable; the
// substrate subpackage provides the production implementation.
package chain

import (
	"fmt"
	"math/big"

	subkey "github.com/vedhavyas/go-subkey/v2"
)

// Address is a 32-byte account id, ecosystem-scoped via its SS58 rendering.
type Address [32]byte

// ParseAddress decodes an SS58 address of any network format.
func ParseAddress(s string) (Address, error) {
	var out Address
	_, pub, err := subkey.SS58Decode(s)
	if err != nil {
		return out, fmt.Errorf("invalid SS58 address %q: %w", s, err)
	}
	if len(pub) != len(out) {
		return out, fmt.Errorf("invalid SS58 address %q: %d byte public key", s, len(pub))
	}
	copy(out[:], pub)
	return out, nil
}

// SS58 renders the address using the given network prefix.
func (a Address) SS58(prefix uint16) string {
	return subkey.SS58Encode(a[:], prefix)
}

// Balances is the account balance triple read from System.Account.
type Balances struct {
	Free     *big.Int
	Reserved *big.Int
	Frozen   *big.Int
}

// CandidateInfo is one entry of the collator selection candidate list.
type CandidateInfo struct {
	Who     Address
	Deposit *big.Int
}

// Call is an opaque, connection-specific inner call. Built by the connection
// and handed back to it for proxy submission.
type Call interface{}
