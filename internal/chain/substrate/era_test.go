package substrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMortalEraEncoding(t *testing.T) {
	tests := []struct {
		name    string
		current uint64
		period  uint64
		first   byte
		second  byte
	}{
		// period 64: low nibble is trailing_zeros(64)-1 = 5
		{"block 1000 period 64", 1000, 64, 0x85, 0x02}, // phase 40: 5 | 40<<4 = 0x285
		{"block 0 period 64", 0, 64, 0x05, 0x00},
		{"block 63 period 64", 63, 64, 0xF5, 0x03}, // 5 | 63<<4 = 0x3F5
		// period 32768: quantize factor 8
		{"large period quantizes phase", 20, 32768, 0x2E, 0x00}, // low 14, phase 16/8=2
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			era := mortalEra(tt.current, tt.period)
			assert.True(t, era.IsMortalEra)
			assert.Equal(t, tt.first, era.AsMortalEra.First)
			assert.Equal(t, tt.second, era.AsMortalEra.Second)
		})
	}
}

func TestMortalEraClampsPeriod(t *testing.T) {
	// Tiny periods clamp up to 4 blocks.
	era := mortalEra(10, 1)
	assert.True(t, era.IsMortalEra)
	// trailing_zeros(4)-1 = 1, phase = 10%4 = 2
	assert.Equal(t, byte(0x21), era.AsMortalEra.First)
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, uint64(1), nextPowerOfTwo(0))
	assert.Equal(t, uint64(64), nextPowerOfTwo(64))
	assert.Equal(t, uint64(64), nextPowerOfTwo(33))
	assert.Equal(t, uint64(128), nextPowerOfTwo(65))
}
