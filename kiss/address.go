package kiss

// Address packing/unpacking for the KISS type byte: a 4-bit TNC address
// (or port, depending on SessionConfig.MultiDrop) in the high nibble and a
// 4-bit command in the low nibble. Address 0 means "standard KISS, no
// multi-drop" per spec.

const (
	// MinAddress and MaxAddress bound the 4-bit address/port space.
	MinAddress = 0
	MaxAddress = 15
)

// pack combines a 4-bit address and a 4-bit command nibble into a single
// type byte. Both inputs must be in 0-15; pack panics on a programmer
// error (out-of-range caller-constructed values should have already been
// validated with validateNibble).
func pack(address, nibble uint8) byte {
	if address > MaxAddress || nibble > MaxAddress {
		panic("kiss: address/command nibble out of range")
	}
	return (address << 4) | (nibble & 0x0f)
}

// unpack splits a type byte into its address and command nibbles. The
// SMACK flag (bit 7) must already be stripped by the caller.
func unpack(b byte) (address, nibble uint8) {
	return (b >> 4) & 0x0f, b & 0x0f
}

// validateNibble returns ErrInvalidAddress if v does not fit in 4 bits.
func validateNibble(v int) error {
	if v < MinAddress || v > MaxAddress {
		return ErrInvalidAddress
	}
	return nil
}
