//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package localsend

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr lets other LocalSend instances on this host bind the multicast
// port too.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
