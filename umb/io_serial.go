package umb

import (
	"os"
	"syscall"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/umb/helpers"
)

const (
	DefaultBaud    = 19200
	DefaultTimeout = 500 * time.Millisecond
	DefaultIdleGap = 30 * time.Millisecond
)

// fileTransport drives an RS-485 serial adapter. A reply is complete when the
// line stays idle for the idle gap after at least one byte.
type fileTransport struct {
	f       *os.File
	t2      termios2
	timeout time.Duration
	idle    time.Duration
}

// NewFileTransport opens path and configures raw 8N1. Zero baud and durations
// take the defaults above.
func NewFileTransport(path string, baud int, responseTimeout, idleGap time.Duration) (*fileTransport, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	ft := &fileTransport{timeout: responseTimeout, idle: idleGap}
	if ft.timeout == 0 {
		ft.timeout = DefaultTimeout
	}
	if ft.idle == 0 {
		ft.idle = DefaultIdleGap
	}
	var err error
	ft.f, err = os.OpenFile(path, syscall.O_RDWR|syscall.O_NOCTTY, 0600)
	if err != nil {
		return nil, errors.Annotatef(err, "umb: open %s", path)
	}
	if err = io_raw_termios2(ft.f.Fd(), &ft.t2, baud); err != nil {
		ft.f.Close()
		return nil, errors.Annotatef(err, "umb: termios %s baud=%d", path, baud)
	}
	return ft, nil
}

func (ft *fileTransport) Send(p []byte) error {
	if err := io_flush_input(ft.f.Fd()); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(helpers.WriteAll(ft.f, p))
}

func (ft *fileTransport) Receive() ([]byte, error) {
	buf := make([]byte, 0, FrameMaxLength)
	tmp := make([]byte, FrameMaxLength)
	wait := ft.timeout
	for {
		if err := io_wait_read(ft.f.Fd(), 1, wait); err != nil {
			if t, ok := err.(Timeouter); ok && t.Timeout() {
				if len(buf) > 0 {
					// line went idle, reply is complete
					return buf, nil
				}
				return nil, errors.Timeoutf("umb: no reply in %v", ft.timeout)
			}
			return nil, errors.Trace(err)
		}
		n, err := syscall.Read(int(ft.f.Fd()), tmp)
		if err != nil {
			return nil, errors.Trace(err)
		}
		buf = append(buf, tmp[:n]...)
		if len(buf) >= FrameMaxLength {
			return buf, nil
		}
		wait = ft.idle
	}
}

func (ft *fileTransport) Close() error { return ft.f.Close() }
