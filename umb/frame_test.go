package umb

import (
	"fmt"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/umb/crc"
	"github.com/temoto/umb/helpers"
)

func TestEncodeRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		to      byte
		cmd     byte
		cmdver  byte
		payload string
		expect  string
	}{
		{"single-ch100", 1, CmdOnlineData, CmdVerOnlineData, "6400",
			"0110017001f00402231064000361d904"},
		{"single-dev2-ch113", 2, CmdOnlineData, CmdVerOnlineData, "7100",
			"0110027001f004022310710003fa9b04"},
		{"onecall-ch113-ch4630", 1, CmdOnlineDataMulti, CmdVerOnlineData, "0271001612",
			"0110017001f007022f100271001612037efb04"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			f, err := EncodeRequest(c.to, c.cmd, c.cmdver, helpers.MustHex(c.payload))
			require.NoError(t, err)
			assert.Equal(t, c.expect, fmt.Sprintf("%x", f))
		})
	}
}

func TestEncodeRequestOverflow(t *testing.T) {
	t.Parallel()

	_, err := EncodeRequest(1, CmdOnlineData, CmdVerOnlineData, make([]byte, PayloadMaxLength+1))
	require.Error(t, err)
	assert.Equal(t, ErrPayloadOverflow, errors.Cause(err))

	f, err := EncodeRequest(1, CmdOnlineData, CmdVerOnlineData, make([]byte, PayloadMaxLength))
	require.NoError(t, err)
	assert.Equal(t, FrameMaxLength, len(f))
	assert.Equal(t, byte(0xff), f[offLen])
}

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	raw := helpers.MustHex("011001f001700802231000710012710003f25904")
	r, err := DecodeResponse(raw, 1, CmdOnlineData, CmdVerOnlineData)
	require.NoError(t, err)
	assert.Equal(t, "007100127100", fmt.Sprintf("%x", r.Payload()))
	assert.Equal(t, StatusOK, r.Status())
	assert.Equal(t, raw, r.Bytes())
}

// refit recomputes the trailer so mutated frames pass the checksum and reach
// the check under test.
func refit(prefix []byte) []byte {
	f := make([]byte, 0, len(prefix)+3)
	f = append(f, prefix...)
	c := crc.CRC16_p8408(f)
	return append(f, byte(c), byte(c>>8), EOT)
}

func TestDecodeResponseErrors(t *testing.T) {
	t.Parallel()

	valid := ReplyFrame(1, CmdOnlineData, CmdVerOnlineData, helpers.MustHex("007100127100"))
	body := valid[:len(valid)-3]

	cases := []struct {
		name   string
		mutate func() []byte
		expect error
	}{
		{"under-min", func() []byte { return valid[:FrameMinLength-1] }, ErrShortFrame},
		{"truncated-body", func() []byte { return refit(body[:len(body)-3]) }, ErrBadLength},
		{"etx-overwritten", func() []byte {
			b := append([]byte{}, body...)
			b[len(b)-1] = 0x00
			return refit(b)
		}, ErrBadLength},
		{"soh", func() []byte {
			b := append([]byte{}, body...)
			b[offSOH] = 0x55
			return refit(b)
		}, ErrBadStart},
		{"version", func() []byte {
			b := append([]byte{}, body...)
			b[offVersion] = 0x20
			return refit(b)
		}, ErrBadVersion},
		{"destination-id", func() []byte {
			b := append([]byte{}, body...)
			b[offTo] = 0x09
			return refit(b)
		}, ErrBadAddress},
		{"destination-class", func() []byte {
			b := append([]byte{}, body...)
			b[offToClass] = DeviceClass
			return refit(b)
		}, ErrBadAddress},
		{"source-id", func() []byte {
			b := append([]byte{}, body...)
			b[offFrom] = 0x09
			return refit(b)
		}, ErrBadAddress},
		{"source-class", func() []byte {
			b := append([]byte{}, body...)
			b[offFromClass] = MasterClass
			return refit(b)
		}, ErrBadAddress},
		{"stx", func() []byte {
			b := append([]byte{}, body...)
			b[offSTX] = 0x00
			return refit(b)
		}, ErrNoBody},
		{"command", func() []byte {
			b := append([]byte{}, body...)
			b[offCmd] = CmdOnlineDataMulti
			return refit(b)
		}, ErrBadCommand},
		{"command-version", func() []byte {
			b := append([]byte{}, body...)
			b[offCmdVer] = 0x11
			return refit(b)
		}, ErrBadCommandVersion},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, err := DecodeResponse(c.mutate(), 1, CmdOnlineData, CmdVerOnlineData)
			require.Error(t, err)
			assert.Equal(t, c.expect, errors.Cause(err), "err=%v", err)
		})
	}
}

// Any corruption without a refitted trailer must fail the checksum before any
// field check fires. Covers both the checksummed region and the two checksum
// bytes themselves; the EOT byte is outside both, matching device behavior.
func TestDecodeResponseChecksumFirst(t *testing.T) {
	t.Parallel()

	valid := ReplyFrame(1, CmdOnlineData, CmdVerOnlineData, helpers.MustHex("007100127100"))
	want := crc.CRC16_p8408(valid[:len(valid)-3])
	for off := 0; off < len(valid)-1; off++ {
		b := append([]byte{}, valid...)
		b[off] ^= 0xff
		_, err := DecodeResponse(b, 1, CmdOnlineData, CmdVerOnlineData)
		require.Error(t, err, "offset=%d", off)
		ic, ok := errors.Cause(err).(InvalidChecksum)
		require.True(t, ok, "offset=%d err=%v", off, err)
		if off < len(valid)-3 {
			assert.Equal(t, want, ic.Received, "offset=%d", off)
			assert.Equal(t, crc.CRC16_p8408(b[:len(b)-3]), ic.Actual, "offset=%d", off)
		} else {
			assert.NotEqual(t, want, ic.Received, "offset=%d", off)
			assert.Equal(t, want, ic.Actual, "offset=%d", off)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	payload := helpers.MustHex("6400")
	req, err := EncodeRequest(9, CmdOnlineData, CmdVerOnlineData, payload)
	require.NoError(t, err)

	// device echoes the command with the same payload, addresses mirrored
	rep := ReplyFrame(9, CmdOnlineData, CmdVerOnlineData, payload)
	r, err := DecodeResponse(rep, 9, CmdOnlineData, CmdVerOnlineData)
	require.NoError(t, err)
	assert.Equal(t, payload, r.Payload())

	// the request itself is not a valid reply: addresses are not mirrored
	_, err = DecodeResponse(req, 9, CmdOnlineData, CmdVerOnlineData)
	require.Error(t, err)
	assert.Equal(t, ErrBadAddress, errors.Cause(err))
}

func BenchmarkEncodeRequest(b *testing.B) {
	payload := []byte{0x64, 0x00}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := EncodeRequest(1, CmdOnlineData, CmdVerOnlineData, payload); err != nil {
			b.Fatal(err)
		}
	}
}
