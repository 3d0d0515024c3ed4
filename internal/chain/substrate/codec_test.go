package substrate

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scaleEncode(t *testing.T, v interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := scale.NewEncoder(&buf)
	require.NoError(t, enc.Encode(v))
	return buf.Bytes()
}

func TestOptionProxyTypeEncoding(t *testing.T) {
	some := scaleEncode(t, someProxyType(proxyNonTransfer))
	assert.Equal(t, []byte{0x01, 0x01}, some, "Some(NonTransfer)")

	none := scaleEncode(t, optionProxyType{})
	assert.Equal(t, []byte{0x00}, none, "None")
}

func TestOptionProxyTypeRoundTrip(t *testing.T) {
	raw := scaleEncode(t, someProxyType(proxyNonTransfer))

	var decoded optionProxyType
	dec := scale.NewDecoder(bytes.NewReader(raw))
	require.NoError(t, dec.Decode(&decoded))

	assert.True(t, decoded.hasValue)
	assert.Equal(t, proxyNonTransfer, decoded.value)
}

func u128le(t *testing.T, v uint64) []byte {
	t.Helper()
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out, v)
	return out
}

func TestCandidateEntryDecoding(t *testing.T) {
	var raw bytes.Buffer
	who := bytes.Repeat([]byte{0xAA}, 32)
	raw.Write(who)
	raw.Write(u128le(t, 50_000_000_000_000))

	var entry candidateEntry
	dec := scale.NewDecoder(&raw)
	require.NoError(t, dec.Decode(&entry))

	assert.Equal(t, who, entry.Who[:])
	assert.Equal(t, "50000000000000", entry.Deposit.String())
}

func TestAccountInfoDecoding(t *testing.T) {
	var raw bytes.Buffer
	u32 := func(v uint32) {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		raw.Write(b)
	}
	u32(7) // nonce
	u32(1) // consumers
	u32(1) // providers
	u32(0) // sufficients
	raw.Write(u128le(t, 1_000_000_000_000)) // free
	raw.Write(u128le(t, 200_000_000_000))   // reserved
	raw.Write(u128le(t, 0))                 // frozen
	raw.Write(u128le(t, 0))                 // flags

	var info accountInfo
	dec := scale.NewDecoder(&raw)
	require.NoError(t, dec.Decode(&info))

	assert.Equal(t, uint32(7), uint32(info.Nonce))
	assert.Equal(t, "1000000000000", info.Data.Free.String())
	assert.Equal(t, "200000000000", info.Data.Reserved.String())
}
