package umb

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/juju/errors"
)

// Channel value types on the wire, all little-endian.
const (
	TypeUint8   byte = 16
	TypeInt8    byte = 17
	TypeUint16  byte = 18
	TypeInt16   byte = 19
	TypeUint32  byte = 20
	TypeInt32   byte = 21
	TypeFloat32 byte = 22
	TypeFloat64 byte = 23
)

var (
	ErrUnknownType = fmt.Errorf("umb: unknown value type")
	ErrShortValue  = fmt.Errorf("umb: value bytes shorter than type width")
)

// TypeWidth returns the wire width of a value type in bytes, 0 for unknown
// tags.
func TypeWidth(tag byte) int {
	switch tag {
	case TypeUint8, TypeInt8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	}
	return 0
}

// DecodeValue reads one channel value tagged with its wire type. float64
// holds every wire type exactly.
func DecodeValue(tag byte, b []byte) (float64, error) {
	w := TypeWidth(tag)
	if w == 0 {
		return 0, errors.Annotatef(ErrUnknownType, "tag=%d", tag)
	}
	if len(b) < w {
		return 0, errors.Annotatef(ErrShortValue, "tag=%d width=%d len=%d", tag, w, len(b))
	}
	switch tag {
	case TypeUint8:
		return float64(b[0]), nil
	case TypeInt8:
		return float64(int8(b[0])), nil
	case TypeUint16:
		return float64(binary.LittleEndian.Uint16(b)), nil
	case TypeInt16:
		return float64(int16(binary.LittleEndian.Uint16(b))), nil
	case TypeUint32:
		return float64(binary.LittleEndian.Uint32(b)), nil
	case TypeInt32:
		return float64(int32(binary.LittleEndian.Uint32(b))), nil
	case TypeFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case TypeFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	}
	panic("code error")
}
