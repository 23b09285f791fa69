package transport

import (
	"errors"
	"net"
	"syscall"
)

// fdOf extracts the raw file descriptor backing c, for registration with a
// selector. Reading the fd does not take ownership of it away from the
// runtime netpoller; both may observe readiness independently, which is safe
// since neither consumes socket state merely by waiting on it.
func fdOf(c syscall.Conn) (int, error) {
	raw, err := c.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	ctrlErr := raw.Control(func(ptr uintptr) { fd = int(ptr) })
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

// isTimeout reports whether err is the timeout error produced by a read or
// accept whose deadline was set to "now", the non-blocking probe idiom used
// throughout this package: a selector readiness notification only promises
// "try now", not "there is still data", so every attempt is made against an
// immediate deadline and a timeout just means another goroutine (or the
// kernel) got there first.
func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
