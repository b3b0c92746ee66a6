package kiss

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodePlainData is spec.md §8 scenario 1.
func TestEncodePlainData(t *testing.T) {
	wire := Encode(Frame{Address: 0, Command: CmdData, Payload: []byte("Hello")}, EncodeOptions{})
	want := []byte{0xC0, 0x00, 0x48, 0x65, 0x6C, 0x6C, 0x6F, 0xC0}
	assert.Equal(t, want, wire)
}

// TestEncodeEscape is spec.md §8 scenario 2.
func TestEncodeEscape(t *testing.T) {
	wire := Encode(Frame{Address: 0, Command: CmdData, Payload: []byte{0xC0, 0xDB}}, EncodeOptions{})
	want := []byte{0xC0, 0x00, 0xDB, 0xDC, 0xDB, 0xDD, 0xC0}
	assert.Equal(t, want, wire)
}

// TestEncodeXKISSPoll is spec.md §8 scenario 3.
func TestEncodeXKISSPoll(t *testing.T) {
	wire := Encode(Frame{Address: 5, Command: CmdPoll}, EncodeOptions{})
	want := []byte{0xC0, 0x5E, 0xC0}
	assert.Equal(t, want, wire)
}

// TestEncodeXORChecksum is spec.md §8 scenario 5.
func TestEncodeXORChecksum(t *testing.T) {
	wire := Encode(Frame{Address: 3, Command: CmdData, Payload: []byte{0x01, 0x02, 0x03}}, EncodeOptions{XOR: true})
	want := []byte{0xC0, 0x30, 0x01, 0x02, 0x03, 0x30, 0xC0}
	assert.Equal(t, want, wire)
}

// TestSMACKTypeByte checks the type-byte math from spec.md §8 scenario 4
// (bit 7 set, address 2 in the high nibble, DATA in the low nibble);
// the worked CRC number in that scenario does not reproduce under the
// textual CRC-16/BUYPASS definition (see SPEC_FULL.md §14), so this test
// only pins the bit layout, and TestCRC16ReferenceVector pins the CRC
// algorithm itself.
func TestSMACKTypeByte(t *testing.T) {
	wire := Encode(Frame{Address: 2, Command: CmdData, Payload: []byte("A")}, EncodeOptions{SMACK: true})
	require.True(t, len(wire) >= 2)
	assert.Equal(t, byte(0xC0), wire[0])
	assert.Equal(t, byte(0xA0), wire[1], "type byte: bit7 | address<<4 | command")
	assert.Equal(t, byte(0xC0), wire[len(wire)-1])
}

// TestDecodeRoundTrip covers spec.md §8's universal round-trip property
// across all three checksum modes for a representative set of frames.
//
// DATA frame addresses are kept to 0-7 here: bit 7 of the type byte
// self-describes a SMACK-CRC trailer (spec.md §4.1), and an address
// nibble of 8-15 sets that same bit natively ((address<<4)&0x80 != 0),
// making a plain DATA frame addressed 8-15 wire-indistinguishable from a
// SMACK frame addressed (address-8). Real SMACK deployments have the
// same restriction (see doismellburning-samoyed/src/kiss_frame.go's note
// that SMACK "assumes a TNC can never have more than 8 channels"); POLL
// and other non-DATA commands never carry SMACK (carriesSMACK is
// DATA-only) and so aren't affected (see TestHighAddressPollRoundTrip).
func TestDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		addr    uint8
		cmd     Command
		payload []byte
		smack   bool
		xor     bool
	}{
		{"plain", 0, CmdData, []byte("Hello"), false, false},
		{"escape-bytes", 0, CmdData, []byte{0xC0, 0xDB, 0xC0}, false, false},
		{"smack", 7, CmdData, []byte("telemetry"), true, false},
		{"xor", 3, CmdData, []byte{0x01, 0x02, 0x03}, false, true},
		{"empty-payload", 4, CmdPoll, nil, false, false},
		{"highest-smack-safe-address", 7, CmdData, []byte{0xFF, 0x00}, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := EncodeOptions{SMACK: tc.smack, XOR: tc.xor}
			wire := Encode(Frame{Address: tc.addr, Command: tc.cmd, Payload: tc.payload}, opts)

			require.Equal(t, byte(FEND), wire[0])
			require.Equal(t, byte(FEND), wire[len(wire)-1])
			require.Equal(t, 2, bytes.Count(wire, []byte{FEND}), "exactly two FEND bytes regardless of payload content")

			raw := wire[1 : len(wire)-1]
			unescaped, err := unescape(raw)
			require.NoError(t, err)

			decoded, kind, err := Decode(raw, DecodeOptions{XOREnabled: tc.xor})
			require.NoError(t, err, "decode kind=%v", kind)

			assert.Equal(t, tc.addr, decoded.Address)
			assert.Equal(t, tc.cmd, decoded.Command)
			if len(tc.payload) == 0 {
				assert.Empty(t, decoded.Payload)
			} else {
				assert.Equal(t, tc.payload, decoded.Payload)
			}
			assert.Equal(t, tc.smack && tc.cmd.carriesSMACK(), decoded.HadCRC)
			assert.Equal(t, tc.xor && !(tc.smack && tc.cmd.carriesSMACK()), decoded.HadXOR)
			_ = unescaped
		})
	}
}

// TestHighAddressPollRoundTrip confirms addresses 8-15 round-trip fine
// for commands that never carry SMACK (carriesSMACK is DATA-only), since
// bit 7 is never reinterpreted as a checksum flag for them.
func TestHighAddressPollRoundTrip(t *testing.T) {
	wire := Encode(Frame{Address: 15, Command: CmdPoll}, EncodeOptions{})
	raw := wire[1 : len(wire)-1]
	decoded, _, err := Decode(raw, DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint8(15), decoded.Address)
	assert.Equal(t, CmdPoll, decoded.Command)
}

func TestDecodeCorruptedEscapeIsDropped(t *testing.T) {
	raw := []byte{0x00, 0xDB, 0x99} // FESC followed by an invalid byte
	_, kind, err := Decode(raw, DecodeOptions{})
	require.Error(t, err)
	assert.Equal(t, KindFrameDecode, kind)
}

func TestDecodeEmptyFrameIsDropped(t *testing.T) {
	_, kind, err := Decode(nil, DecodeOptions{})
	require.Error(t, err)
	assert.Equal(t, KindFrameDecode, kind)
}

func TestSplitIgnoresBackToBackFEND(t *testing.T) {
	stream := []byte{FEND, FEND, 0x00, 0x41, FEND}
	advance, token, err := Split(stream, false)
	require.NoError(t, err)
	assert.Equal(t, len(stream), advance)
	assert.Equal(t, []byte{0x00, 0x41}, token)
}
