package kiss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		address := uint8(rapid.IntRange(0, MaxAddress).Draw(rt, "address"))
		nibble := uint8(rapid.IntRange(0, MaxAddress).Draw(rt, "nibble"))

		b := pack(address, nibble)
		gotAddr, gotNibble := unpack(b)
		if gotAddr != address || gotNibble != nibble {
			rt.Fatalf("unpack(pack(%d, %d)) = (%d, %d)", address, nibble, gotAddr, gotNibble)
		}
	})
}

func TestPackPanicsOutOfRange(t *testing.T) {
	assert.Panics(t, func() { pack(16, 0) })
	assert.Panics(t, func() { pack(0, 16) })
}

func TestValidateNibble(t *testing.T) {
	assert.NoError(t, validateNibble(0))
	assert.NoError(t, validateNibble(15))
	assert.ErrorIs(t, validateNibble(-1), ErrInvalidAddress)
	assert.ErrorIs(t, validateNibble(16), ErrInvalidAddress)
}
