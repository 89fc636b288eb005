package umb

import (
	"io"
	"net"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/umb/helpers"
)

// netTransport reaches a device behind a serial-to-TCP bridge (terminal
// server). Same idle-gap reassembly as the serial transport, built on read
// deadlines. A dead connection is redialed on the next Send, paced by
// backoff so a poll loop does not hammer a rebooting bridge.
type netTransport struct {
	addr        string
	conn        net.Conn
	dialTimeout time.Duration
	timeout     time.Duration
	idle        time.Duration
	backoff     helpers.Backoff
}

func NewNetTransport(addr string, dialTimeout, responseTimeout, idleGap time.Duration) (*netTransport, error) {
	nt := &netTransport{addr: addr, dialTimeout: dialTimeout, timeout: responseTimeout, idle: idleGap}
	if nt.dialTimeout == 0 {
		nt.dialTimeout = 3 * time.Second
	}
	if nt.timeout == 0 {
		nt.timeout = DefaultTimeout
	}
	if nt.idle == 0 {
		nt.idle = DefaultIdleGap
	}
	nt.backoff = helpers.Backoff{Min: nt.dialTimeout / 3, Max: 10 * nt.dialTimeout, K: 2}
	if err := nt.redial(); err != nil {
		return nil, err
	}
	return nt, nil
}

func (nt *netTransport) Send(p []byte) error {
	if nt.conn == nil {
		if err := nt.redial(); err != nil {
			return err
		}
	}
	if err := helpers.WriteAll(nt.conn, p); err != nil {
		nt.drop()
		return errors.Trace(err)
	}
	return nil
}

func (nt *netTransport) Receive() ([]byte, error) {
	if nt.conn == nil {
		return nil, errors.Errorf("umb: receive without connection to %s", nt.addr)
	}
	buf := make([]byte, 0, FrameMaxLength)
	tmp := make([]byte, FrameMaxLength)
	wait := nt.timeout
	for {
		if err := nt.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return nil, errors.Trace(err)
		}
		n, err := nt.conn.Read(tmp)
		buf = append(buf, tmp[:n]...)
		switch {
		case err == nil:
		case isNetTimeout(err):
			if len(buf) > 0 {
				return buf, nil
			}
			return nil, errors.Timeoutf("umb: no reply in %v", nt.timeout)
		case err == io.EOF && len(buf) > 0:
			nt.drop()
			return buf, nil
		default:
			nt.drop()
			return nil, errors.Trace(err)
		}
		if len(buf) >= FrameMaxLength {
			return buf, nil
		}
		wait = nt.idle
	}
}

func (nt *netTransport) Close() error {
	if nt.conn == nil {
		return nil
	}
	err := nt.conn.Close()
	nt.conn = nil
	return err
}

func (nt *netTransport) redial() error {
	time.Sleep(nt.backoff.DelayBefore())
	conn, err := net.DialTimeout("tcp", nt.addr, nt.dialTimeout)
	nt.backoff.Update(err == nil)
	if err != nil {
		return errors.Annotatef(err, "umb: dial %s", nt.addr)
	}
	nt.conn = conn
	return nil
}

func (nt *netTransport) drop() {
	_ = nt.conn.Close()
	nt.conn = nil
}

func isNetTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
