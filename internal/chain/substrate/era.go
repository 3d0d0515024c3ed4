package substrate

import (
	"math/bits"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// defaultEraPeriod is the transaction lifetime in blocks. A dropped
// transaction dies within this window instead of replaying indefinitely.
const defaultEraPeriod = 64

// mortalEra encodes a bounded-lifetime era for the given birth block,
// following the standard substrate quantized encoding.
func mortalEra(current, period uint64) types.ExtrinsicEra {
	calPeriod := nextPowerOfTwo(period)
	if calPeriod < 4 {
		calPeriod = 4
	}
	if calPeriod > 1<<16 {
		calPeriod = 1 << 16
	}

	phase := current % calPeriod
	quantizeFactor := calPeriod >> 12
	if quantizeFactor < 1 {
		quantizeFactor = 1
	}
	quantizedPhase := phase / quantizeFactor * quantizeFactor

	low := uint64(bits.TrailingZeros64(calPeriod)) - 1
	if low < 1 {
		low = 1
	}
	if low > 15 {
		low = 15
	}
	encoded := uint16(low) | uint16(quantizedPhase/quantizeFactor)<<4

	return types.ExtrinsicEra{
		IsMortalEra: true,
		AsMortalEra: types.MortalEra{
			First:  byte(encoded),
			Second: byte(encoded >> 8),
		},
	}
}

func nextPowerOfTwo(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	if v&(v-1) == 0 {
		return v
	}
	return 1 << bits.Len64(v)
}
