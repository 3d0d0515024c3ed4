package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range All() {
		assert.False(t, seen[c.ID], "duplicate chain id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestAllOrderStable(t *testing.T) {
	first := All()
	second := All()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	// Polkadot chains come before Kusama chains in the report.
	assert.Equal(t, "polkadot_assethub", first[0].ID)
}

func TestByID(t *testing.T) {
	c, ok := ByID("kusama_coretime")
	require.True(t, ok)
	assert.Equal(t, Kusama, c.Ecosystem)
	assert.Equal(t, uint8(12), c.TokenDecimals)
	assert.True(t, c.SupportsProxyRegistration)

	_, ok = ByID("westend_assethub")
	assert.False(t, ok)
}

func TestBridgeHubsDoNotSupportProxy(t *testing.T) {
	for _, id := range []string{"polkadot_bridgehub", "kusama_bridgehub"} {
		c, ok := ByID(id)
		require.True(t, ok, id)
		assert.False(t, c.SupportsProxyRegistration, id)
	}
}

func TestEcosystemDefaults(t *testing.T) {
	assert.Equal(t, uint8(10), Polkadot.TokenDecimals())
	assert.Equal(t, uint8(12), Kusama.TokenDecimals())
	assert.Equal(t, "DOT", Polkadot.TokenSymbol())
	assert.Equal(t, "KSM", Kusama.TokenSymbol())
	assert.Equal(t, uint16(0), Polkadot.SS58Prefix())
	assert.Equal(t, uint16(2), Kusama.SS58Prefix())

	// 1 DOT and 0.1 KSM in smallest units.
	assert.Equal(t, "10000000000", Polkadot.DefaultBondReserve().String())
	assert.Equal(t, "100000000000", Kusama.DefaultBondReserve().String())
}

func TestEveryEcosystemHasChains(t *testing.T) {
	count := map[Ecosystem]int{}
	for _, c := range All() {
		count[c.Ecosystem]++
	}
	assert.Equal(t, 5, count[Polkadot])
	assert.Equal(t, 5, count[Kusama])
}
