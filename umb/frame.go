package umb

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/umb/crc"
)

const (
	SOH byte = 0x01 // start of frame
	STX byte = 0x02 // start of body
	ETX byte = 0x03 // end of body
	EOT byte = 0x04 // end of frame

	// protocol version 1.0, high nibble major
	Version byte = 0x10

	MasterID    byte = 0x01
	MasterClass byte = 0xf0
	DeviceClass byte = 0x70

	// factory default device id on the bus
	DefaultDeviceAddress byte = 0x01

	CmdOnlineData      byte = 0x23
	CmdOnlineDataMulti byte = 0x2f
	CmdVerOnlineData   byte = 0x10
)

const (
	// length field covers command and command version too
	lengthOverhead = 2

	// SOH through STX, then ETX CRC16 EOT after the body
	envelopeLength = 12

	PayloadMaxLength = 0xff - lengthOverhead
	FrameMinLength   = envelopeLength + lengthOverhead
	FrameMaxLength   = FrameMinLength + PayloadMaxLength
)

const (
	offSOH       = 0
	offVersion   = 1
	offTo        = 2
	offToClass   = 3
	offFrom      = 4
	offFromClass = 5
	offLen       = 6
	offSTX       = 7
	offCmd       = 8
	offCmdVer    = 9
	offPayload   = 10
)

var (
	ErrPayloadOverflow   = fmt.Errorf("umb: payload too long for one frame")
	ErrShortFrame        = fmt.Errorf("umb: frame truncated")
	ErrBadLength         = fmt.Errorf("umb: length field does not match frame end")
	ErrBadStart          = fmt.Errorf("umb: no start-of-frame marker")
	ErrBadVersion        = fmt.Errorf("umb: protocol version mismatch")
	ErrBadAddress        = fmt.Errorf("umb: address mismatch")
	ErrNoBody            = fmt.Errorf("umb: no start-of-body marker")
	ErrBadCommand        = fmt.Errorf("umb: command mismatch")
	ErrBadCommandVersion = fmt.Errorf("umb: command version mismatch")
)

type InvalidChecksum struct {
	Received uint16
	Actual   uint16
}

func (e InvalidChecksum) Error() string {
	return fmt.Sprintf("umb: invalid checksum received=%04x actual=%04x", e.Received, e.Actual)
}

// EncodeRequest builds one request frame addressed to device id `to`.
func EncodeRequest(to byte, command, commandVersion byte, payload []byte) ([]byte, error) {
	if len(payload) > PayloadMaxLength {
		return nil, errors.Annotatef(ErrPayloadOverflow, "len=%d max=%d", len(payload), PayloadMaxLength)
	}
	f := make([]byte, 0, FrameMinLength+len(payload))
	f = append(f, SOH, Version, to, DeviceClass, MasterID, MasterClass,
		byte(lengthOverhead+len(payload)), STX, command, commandVersion)
	f = append(f, payload...)
	f = append(f, ETX)
	c := crc.CRC16_p8408(f)
	f = append(f, byte(c), byte(c>>8), EOT)
	return f, nil
}

// Response is one checked reply frame.
type Response struct {
	raw     []byte
	payload []byte
}

// DecodeResponse validates raw as the reply to a request sent to device id
// `to` with the given command and command version. Checks run in fixed order:
// checksum, then declared length against the end-of-body marker, then header
// fields in offset order. A non-zero device status inside a valid frame is
// data, not a decode error.
func DecodeResponse(raw []byte, to byte, command, commandVersion byte) (*Response, error) {
	if len(raw) < FrameMinLength {
		return nil, errors.Annotatef(ErrShortFrame, "len=%d", len(raw))
	}
	received := uint16(raw[len(raw)-3]) | uint16(raw[len(raw)-2])<<8
	actual := crc.CRC16_p8408(raw[:len(raw)-3])
	if received != actual {
		return nil, InvalidChecksum{Received: received, Actual: actual}
	}
	end := offSTX + 1 + int(raw[offLen]) // ETX offset
	if end+4 != len(raw) || raw[end] != ETX {
		return nil, errors.Annotatef(ErrBadLength, "length=%d len=%d", raw[offLen], len(raw))
	}
	if raw[offSOH] != SOH {
		return nil, errors.Annotatef(ErrBadStart, "%02x", raw[offSOH])
	}
	if raw[offVersion] != Version {
		return nil, errors.Annotatef(ErrBadVersion, "received=%02x expected=%02x", raw[offVersion], Version)
	}
	if raw[offTo] != MasterID || raw[offToClass] != MasterClass {
		return nil, errors.Annotatef(ErrBadAddress, "destination=%02x%02x expected=%02x%02x",
			raw[offTo], raw[offToClass], MasterID, MasterClass)
	}
	if raw[offFrom] != to || raw[offFromClass] != DeviceClass {
		return nil, errors.Annotatef(ErrBadAddress, "source=%02x%02x expected=%02x%02x",
			raw[offFrom], raw[offFromClass], to, DeviceClass)
	}
	if raw[offSTX] != STX {
		return nil, errors.Annotatef(ErrNoBody, "%02x", raw[offSTX])
	}
	if raw[offCmd] != command {
		return nil, errors.Annotatef(ErrBadCommand, "received=%02x expected=%02x", raw[offCmd], command)
	}
	if raw[offCmdVer] != commandVersion {
		return nil, errors.Annotatef(ErrBadCommandVersion, "received=%02x expected=%02x", raw[offCmdVer], commandVersion)
	}
	return &Response{raw: raw, payload: raw[offPayload:end]}, nil
}

// Payload is the body between command version and end-of-body marker. The
// slice aliases the decoded frame.
func (r *Response) Payload() []byte { return r.payload }

// Status is the first payload byte. Both implemented commands put the device
// status there.
func (r *Response) Status() byte {
	if len(r.payload) == 0 {
		return 0
	}
	return r.payload[0]
}

func (r *Response) Bytes() []byte { return r.raw }
