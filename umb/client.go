package umb

import (
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/umb/helpers"
	"github.com/temoto/umb/log2"
)

// StatusOK is the device status of a successful measurement. Other codes are
// data for the caller, see package umb/status for human messages.
const StatusOK byte = 0

var ErrBadSubLength = fmt.Errorf("umb: sub-record length does not match value type width")

// Transport moves whole frames over one half-duplex link. Send writes one
// request; Receive returns one complete device reply, gathering bytes until
// the line goes idle.
type Transport interface {
	Send(p []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Client drives request/response queries against UMB devices. It takes no
// locks: one half-duplex link carries one transaction at a time and callers
// serialize access themselves.
type Client struct {
	t   Transport
	log *log2.Log
}

func NewClient(t Transport, log *log2.Log) *Client {
	if log == nil {
		log = log2.NewStderr(log2.LError)
	}
	return &Client{t: t, log: log}
}

// Result is one channel reading. With Status != StatusOK the device sent no
// measurement and Value/Type stay zero.
type Result struct {
	Channel uint16
	Value   float64
	Status  byte
	Type    byte
}

// tx runs one wire transaction: exactly one send, one receive, no retries.
func (c *Client) tx(device byte, command, commandVersion byte, payload []byte) (*Response, error) {
	request, err := EncodeRequest(device, command, commandVersion, payload)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.log.Debugf("umb: send %x", request)
	if err = c.t.Send(request); err != nil {
		return nil, errors.Annotate(err, "umb: send")
	}
	raw, err := c.t.Receive()
	if err != nil {
		return nil, errors.Annotate(err, "umb: receive")
	}
	c.log.Debugf("umb: recv %x", raw)
	return DecodeResponse(raw, device, command, commandVersion)
}

// OnlineDataQuery reads one channel from one device.
func (c *Client) OnlineDataQuery(device byte, channel uint16) (Result, error) {
	payload := []byte{byte(channel), byte(channel >> 8)}
	r, err := c.tx(device, CmdOnlineData, CmdVerOnlineData, payload)
	if err != nil {
		return Result{Channel: channel}, errors.Trace(err)
	}
	return decodeSingle(r.Payload(), channel)
}

// OnlineDataQueryMulti reads channels with one transaction each, preserving
// request order and duplicates. Frame and transport errors abort; per-value
// decode errors are folded into the returned error while remaining channels
// still run.
func (c *Client) OnlineDataQueryMulti(device byte, channels []uint16) ([]Result, error) {
	rs := make([]Result, 0, len(channels))
	errs := make([]error, 0, 8)
	for _, ch := range channels {
		r, err := c.OnlineDataQuery(device, ch)
		if err != nil {
			if !isValueError(err) {
				return rs, errors.Annotatef(err, "channel=%d", ch)
			}
			errs = append(errs, errors.Annotatef(err, "channel=%d", ch))
		}
		rs = append(rs, r)
	}
	return rs, helpers.FoldErrors(errs)
}

// OnlineDataQueryMultiOneCall reads all channels in a single transaction
// (command 0x2f). The reply carries one variable-length sub-record per
// requested channel, in request order, duplicates answered independently.
// Error semantics match OnlineDataQueryMulti.
func (c *Client) OnlineDataQueryMultiOneCall(device byte, channels []uint16) ([]Result, error) {
	if len(channels) == 0 {
		return nil, nil
	}
	payload := make([]byte, 1, 1+2*len(channels))
	payload[0] = byte(len(channels))
	for _, ch := range channels {
		payload = append(payload, byte(ch), byte(ch>>8))
	}
	r, err := c.tx(device, CmdOnlineDataMulti, CmdVerOnlineData, payload)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return decodeMulti(r.Payload(), channels)
}

func (c *Client) Close() error { return c.t.Close() }

// single reply payload: status, channel echo (2), value type, value bytes
const singleHeaderLength = 4

func decodeSingle(p []byte, channel uint16) (Result, error) {
	if len(p) == 0 {
		return Result{Channel: channel}, errors.Annotatef(ErrShortFrame, "empty payload")
	}
	res := Result{Channel: channel, Status: p[0]}
	if res.Status != StatusOK {
		// error replies carry no value
		return res, nil
	}
	if len(p) < singleHeaderLength {
		return res, errors.Annotatef(ErrShortFrame, "payload=%x", p)
	}
	res.Type = p[3]
	v, err := DecodeValue(res.Type, p[4:])
	if err != nil {
		return res, errors.Annotatef(err, "channel=%d", channel)
	}
	res.Value = v
	return res, nil
}

// multi reply payload: overall status, channel count echo, then per channel
// one sub-record: length, status, channel echo (2), value type, value bytes.
// Sub-record length counts the bytes after itself, so a decoded value implies
// length = 4 + type width. Error sub-records legally stop after the channel
// echo and the length byte alone advances the walk.
const (
	multiHeaderLength = 2
	subOverhead       = 4
)

func decodeMulti(p []byte, channels []uint16) ([]Result, error) {
	rs := make([]Result, 0, len(channels))
	errs := make([]error, 0, 8)
	off := multiHeaderLength
	for _, ch := range channels {
		if off+2 > len(p) || off+1+int(p[off]) > len(p) {
			return rs, errors.Annotatef(ErrShortFrame, "sub-record channel=%d offset=%d payload=%x", ch, off, p)
		}
		res, end, err := decodeSub(p, off, ch)
		if err != nil {
			errs = append(errs, err)
		}
		rs = append(rs, res)
		off = end
	}
	return rs, helpers.FoldErrors(errs)
}

// decodeSub reads the sub-record at off, bounds already checked. end is the
// offset just past the record; it is valid even when the record itself is
// not.
func decodeSub(p []byte, off int, channel uint16) (res Result, end int, err error) {
	subLen := int(p[off])
	end = off + 1 + subLen
	res = Result{Channel: channel, Status: p[off+1]}
	if res.Status != StatusOK {
		return res, end, nil
	}
	if subLen <= subOverhead {
		return res, end, errors.Annotatef(ErrBadSubLength, "channel=%d length=%d", channel, subLen)
	}
	res.Type = p[off+4]
	w := TypeWidth(res.Type)
	switch {
	case w == 0:
		err = errors.Annotatef(ErrUnknownType, "channel=%d tag=%d", channel, res.Type)
	case subLen != subOverhead+w:
		err = errors.Annotatef(ErrBadSubLength, "channel=%d length=%d width=%d", channel, subLen, w)
	default:
		res.Value, err = DecodeValue(res.Type, p[off+5:end])
	}
	return res, end, err
}

func isValueError(e error) bool {
	switch errors.Cause(e) {
	case ErrUnknownType, ErrShortValue, ErrBadSubLength:
		return true
	}
	return false
}
