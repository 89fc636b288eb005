package umb

import (
	"net"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/umb/helpers"
)

// bridgeSim accepts connections and answers every write with a fixed reply,
// like a serial-to-TCP bridge in front of a single device.
func bridgeSim(t testing.TB, reply []byte) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, FrameMaxLength)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
					if _, err := c.Write(reply); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestNetTransportRoundTrip(t *testing.T) {
	t.Parallel()
	reply := helpers.MustHex("011001f0017008022310006400122a000380a504")
	addr := bridgeSim(t, reply)

	nt, err := NewNetTransport(addr, time.Second, 500*time.Millisecond, 30*time.Millisecond)
	require.NoError(t, err)
	defer nt.Close()

	require.NoError(t, nt.Send(helpers.MustHex("0110017001f00402231064000361d904")))
	b, err := nt.Receive()
	require.NoError(t, err)
	assert.Equal(t, reply, b)
}

func TestNetTransportRedial(t *testing.T) {
	t.Parallel()
	reply := helpers.MustHex("011001f0017008022310006400122a000380a504")
	addr := bridgeSim(t, reply)

	nt, err := NewNetTransport(addr, 150*time.Millisecond, 500*time.Millisecond, 30*time.Millisecond)
	require.NoError(t, err)
	defer nt.Close()

	req := helpers.MustHex("0110017001f00402231064000361d904")
	require.NoError(t, nt.Send(req))
	_, err = nt.Receive()
	require.NoError(t, err)

	// bridge dropped us, next send dials again
	nt.drop()
	require.NoError(t, nt.Send(req))
	b, err := nt.Receive()
	require.NoError(t, err)
	assert.Equal(t, reply, b)
}

func TestNetTransportNoReply(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			// device unplugged from the bridge: accept and stay silent
			_ = conn
		}
	}()

	nt, err := NewNetTransport(ln.Addr().String(), time.Second, 50*time.Millisecond, 10*time.Millisecond)
	require.NoError(t, err)
	defer nt.Close()

	require.NoError(t, nt.Send([]byte{0x01}))
	_, err = nt.Receive()
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err), "err=%v", err)
}
