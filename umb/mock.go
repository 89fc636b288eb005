package umb

// Public helpers to stub a UMB device in tests of this and dependent packages.

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/temoto/umb/crc"
	"github.com/temoto/umb/helpers"
	"github.com/temoto/umb/log2"
)

// ChanTransport pairs a Client with a scripted device over channels.
type ChanTransport struct {
	Req     chan []byte
	Resp    chan []byte
	timeout time.Duration
}

func NewChanTransport() *ChanTransport {
	return &ChanTransport{
		Req:     make(chan []byte, 1),
		Resp:    make(chan []byte, 1),
		timeout: 5 * time.Second,
	}
}

func (ct *ChanTransport) Send(p []byte) error {
	b := make([]byte, len(p))
	copy(b, p)
	select {
	case ct.Req <- b:
		return nil
	case <-time.After(ct.timeout):
		panic("umb mock ChanTransport.Send timeout guard")
	}
}

func (ct *ChanTransport) Receive() ([]byte, error) {
	select {
	case b := <-ct.Resp:
		return b, nil
	case <-time.After(ct.timeout):
		panic("umb mock ChanTransport.Receive timeout guard. Send without scripted reply")
	}
}

func (ct *ChanTransport) Close() error {
	close(ct.Req)
	return nil
}

// NewTestClient runs handler as the device side of the link. A nil reply
// reaches the codec as an empty frame and decodes into an error, no hang.
func NewTestClient(t testing.TB, handler func(request []byte) []byte) (*Client, *ChanTransport) {
	ct := NewChanTransport()
	go func() {
		for req := range ct.Req {
			ct.Resp <- handler(req)
		}
	}()
	return NewClient(ct, log2.NewTest(t, log2.LDebug)), ct
}

// TestTx scripts one transaction: assert the request hex, feed the reply.
func TestTx(t testing.TB, ct *ChanTransport, expectRequestHex, responseHex string) {
	req := <-ct.Req
	if actual := fmt.Sprintf("%x", req); actual != expectRequestHex {
		t.Errorf("umb request expected=%s actual=%s", expectRequestHex, actual)
	}
	ct.Resp <- helpers.MustHex(responseHex)
}

// ReplyFrame builds a well-formed device reply, addresses mirrored.
func ReplyFrame(from byte, command, commandVersion byte, payload []byte) []byte {
	if len(payload) > PayloadMaxLength {
		panic("code error ReplyFrame payload")
	}
	f := make([]byte, 0, FrameMinLength+len(payload))
	f = append(f, SOH, Version, MasterID, MasterClass, from, DeviceClass,
		byte(lengthOverhead+len(payload)), STX, command, commandVersion)
	f = append(f, payload...)
	f = append(f, ETX)
	c := crc.CRC16_p8408(f)
	f = append(f, byte(c), byte(c>>8), EOT)
	return f
}

const simStatusBadChannel byte = 36 // device answer for a channel it does not serve

// SimChannel is one measurement a DeviceSim serves. Raw overrides the encoded
// value bytes, for malformed-record tests.
type SimChannel struct {
	Type   byte
	Value  float64
	Status byte
	Raw    []byte
}

// DeviceSim answers online data queries from a fixed channel table, enough to
// exercise the single and the one-call paths the same way.
type DeviceSim struct {
	Addr     byte
	Channels map[uint16]SimChannel
}

// Handle acts on one request frame. Frames for other addresses or unknown
// commands get no answer.
func (ds *DeviceSim) Handle(request []byte) []byte {
	if len(request) < FrameMinLength || request[offTo] != ds.Addr {
		return nil
	}
	end := offSTX + 1 + int(request[offLen])
	if end+4 != len(request) {
		return nil
	}
	p := request[offPayload:end]
	switch request[offCmd] {
	case CmdOnlineData:
		if len(p) < 2 {
			return nil
		}
		ch := binary.LittleEndian.Uint16(p)
		return ReplyFrame(ds.Addr, CmdOnlineData, CmdVerOnlineData, ds.single(ch))
	case CmdOnlineDataMulti:
		if len(p) < 1 || len(p) < 1+2*int(p[0]) {
			return nil
		}
		payload := []byte{StatusOK, p[0]}
		for i := 0; i < int(p[0]); i++ {
			ch := binary.LittleEndian.Uint16(p[1+2*i:])
			payload = append(payload, ds.sub(ch)...)
		}
		return ReplyFrame(ds.Addr, CmdOnlineDataMulti, CmdVerOnlineData, payload)
	}
	return nil
}

func (ds *DeviceSim) single(ch uint16) []byte {
	sc, ok := ds.Channels[ch]
	if !ok {
		return []byte{simStatusBadChannel, byte(ch), byte(ch >> 8)}
	}
	if sc.Status != StatusOK {
		return []byte{sc.Status, byte(ch), byte(ch >> 8)}
	}
	p := []byte{StatusOK, byte(ch), byte(ch >> 8), sc.Type}
	return append(p, sc.valueBytes()...)
}

func (ds *DeviceSim) sub(ch uint16) []byte {
	body := ds.single(ch)
	return append([]byte{byte(len(body))}, body...)
}

func (sc SimChannel) valueBytes() []byte {
	if sc.Raw != nil {
		return sc.Raw
	}
	switch sc.Type {
	case TypeUint8:
		return []byte{uint8(sc.Value)}
	case TypeInt8:
		return []byte{byte(int8(sc.Value))}
	case TypeUint16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(sc.Value))
		return b
	case TypeInt16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(int16(sc.Value)))
		return b
	case TypeUint32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(sc.Value))
		return b
	case TypeInt32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(sc.Value)))
		return b
	case TypeFloat32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(sc.Value)))
		return b
	case TypeFloat64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(sc.Value))
		return b
	}
	panic("code error SimChannel.Type")
}
