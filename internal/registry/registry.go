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

// Package registry is the static catalog of supported system parachains.
// Registry order is stable and drives the status report order.
package registry

import "math/big"

// Ecosystem identifies a relay chain and its system parachains.
type Ecosystem string

const (
	Polkadot Ecosystem = "polkadot"
	Kusama   Ecosystem = "kusama"
)

// TokenDecimals returns the native token precision for the ecosystem.
func (e Ecosystem) TokenDecimals() uint8 {
	if e == Kusama {
		return 12
	}
	return 10
}

// TokenSymbol returns the native token symbol for the ecosystem.
func (e Ecosystem) TokenSymbol() string {
	if e == Kusama {
		return "KSM"
	}
	return "DOT"
}

// SS58Prefix returns the address format prefix for the ecosystem.
func (e Ecosystem) SS58Prefix() uint16 {
	if e == Kusama {
		return 2
	}
	return 0
}

// DefaultBondReserve returns the ecosystem default amount kept out of the
// bond: 1 DOT on Polkadot, 0.1 KSM on Kusama. Smallest units.
func (e Ecosystem) DefaultBondReserve() *big.Int {
	if e == Kusama {
		return new(big.Int).SetUint64(100_000_000_000) // 0.1 KSM
	}
	return new(big.Int).SetUint64(10_000_000_000) // 1 DOT
}

// ChainSpec describes one supported system parachain.
type ChainSpec struct {
	ID        string
	Ecosystem Ecosystem
	Name      string
	RPCURL    string
	// BridgeHub runtimes do not allow collator registration through a proxy,
	// so those chains are skipped without connecting or reading any state.
	SupportsProxyRegistration bool
	TokenDecimals             uint8
	BondReserve               *big.Int
}

func chain(id string, eco Ecosystem, name, rpcURL string, supportsProxy bool) ChainSpec {
	return ChainSpec{
		ID:                        id,
		Ecosystem:                 eco,
		Name:                      name,
		RPCURL:                    rpcURL,
		SupportsProxyRegistration: supportsProxy,
		TokenDecimals:             eco.TokenDecimals(),
		BondReserve:               eco.DefaultBondReserve(),
	}
}

// chains is the supported chain matrix. Collectives exists only on Polkadot,
// Encointer only on Kusama.
var chains = []ChainSpec{
	chain("polkadot_assethub", Polkadot, "DOT Asset Hub", "wss://rpc-asset-hub-polkadot.luckyfriday.io", true),
	chain("polkadot_bridgehub", Polkadot, "DOT Bridge Hub", "wss://rpc-bridge-hub-polkadot.luckyfriday.io", false),
	chain("polkadot_collectives", Polkadot, "DOT Collectives", "wss://rpc-collectives-polkadot.luckyfriday.io", true),
	chain("polkadot_coretime", Polkadot, "DOT Coretime", "wss://rpc-coretime-polkadot.luckyfriday.io", true),
	chain("polkadot_people", Polkadot, "DOT People", "wss://rpc-people-polkadot.luckyfriday.io", true),
	chain("kusama_assethub", Kusama, "KSM Asset Hub", "wss://rpc-asset-hub-kusama.luckyfriday.io", true),
	chain("kusama_bridgehub", Kusama, "KSM Bridge Hub", "wss://rpc-bridge-hub-kusama.luckyfriday.io", false),
	chain("kusama_coretime", Kusama, "KSM Coretime", "wss://rpc-coretime-kusama.luckyfriday.io", true),
	chain("kusama_people", Kusama, "KSM People", "wss://rpc-people-kusama.luckyfriday.io", true),
	chain("kusama_encointer", Kusama, "KSM Encointer", "wss://rpc-encointer-kusama.luckyfriday.io", true),
}

// All returns the supported chains in stable report order. The caller gets a
// copy; specs themselves are treated as immutable after startup.
func All() []ChainSpec {
	out := make([]ChainSpec, len(chains))
	copy(out, chains)
	return out
}

// ByID looks up a chain by its stable identifier.
func ByID(id string) (ChainSpec, bool) {
	for _, c := range chains {
		if c.ID == id {
			return c, true
		}
	}
	return ChainSpec{}, false
}
