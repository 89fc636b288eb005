package umb

// Low-level serial plumbing: termios2 through raw ioctl. UMB devices speak
// plain 8N1, factory default 19200 baud.

import (
	"fmt"
	"os"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	cBOTHER   = 0x1000
	cFIONREAD = 0x541b
	cNCCS     = 19
	cTCFLSH   = 0x540b
	cTCSETSF2 = 0x402c542d
)

type cc_t byte
type speed_t uint32
type tcflag_t uint32
type termios2 struct {
	c_iflag  tcflag_t    // input mode flags
	c_oflag  tcflag_t    // output mode flags
	c_cflag  tcflag_t    // control mode flags
	c_lflag  tcflag_t    // local mode flags
	c_line   cc_t        // line discipline
	c_cc     [cNCCS]cc_t // control characters
	c_ispeed speed_t     // input speed
	c_ospeed speed_t     // output speed
}

type ErrTimeoutT string

func (e ErrTimeoutT) Error() string { return string(e) }
func (ErrTimeoutT) Timeout() bool   { return true }

type Timeouter interface {
	Timeout() bool
}

func ioctl(fd uintptr, op, arg uintptr) error {
	r, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, op, arg)
	if errno != 0 {
		return os.NewSyscallError("SYS_IOCTL", errno)
	}
	if r != 0 {
		return fmt.Errorf("umb: SYS_IOCTL op=%x unexpected result=%d", op, r)
	}
	return nil
}

// io_wait_read blocks until at least min bytes sit in the kernel buffer or
// wait passes.
func io_wait_read(fd uintptr, min int, wait time.Duration) error {
	var out int
	tfinal := time.Now().Add(wait)
	for {
		if err := ioctl(fd, uintptr(cFIONREAD), uintptr(unsafe.Pointer(&out))); err != nil {
			return err
		}
		if out >= min {
			return nil
		}
		time.Sleep(wait / 16)
		if time.Now().After(tfinal) {
			return ErrTimeoutT("io_wait_read timeout")
		}
	}
}

// io_raw_termios2 puts the line into raw 8N1. BOTHER takes the rate as a
// plain number, no Bxxxx constant table.
func io_raw_termios2(fd uintptr, t2 *termios2, baud int) error {
	*t2 = termios2{
		c_iflag:  unix.IGNBRK,
		c_cflag:  cBOTHER | unix.CLOCAL | unix.CREAD | unix.CS8,
		c_ispeed: speed_t(baud),
		c_ospeed: speed_t(baud),
	}
	// TCSETSF2 also flushes both queues
	return ioctl(fd, uintptr(cTCSETSF2), uintptr(unsafe.Pointer(t2)))
}

// io_flush_input drops unread bytes, stale noise from the half-duplex
// turnaround.
func io_flush_input(fd uintptr) error {
	return ioctl(fd, uintptr(cTCFLSH), uintptr(unix.TCIFLUSH))
}
