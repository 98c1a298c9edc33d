//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package datagram

import (
	"fmt"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"
)

// Tune resizes the kernel send/receive socket buffers backing the endpoint.
// A non-positive size leaves that buffer untouched. Larger buffers let the
// sender keep more in-flight segments queued at the OS level during bursts
// from a full sliding window, and are most useful on high-bandwidth links
// where the default kernel defaults cap throughput below MSS*window/RTT.
func (e *Endpoint) Tune(sendBytes, recvBytes int) error {
	fd := netfd.GetFdFromConn(e.conn)
	if fd < 0 {
		return fmt.Errorf("datagram: tune: could not obtain file descriptor")
	}
	if sendBytes > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sendBytes); err != nil {
			return fmt.Errorf("datagram: tune SO_SNDBUF: %w", err)
		}
	}
	if recvBytes > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, recvBytes); err != nil {
			return fmt.Errorf("datagram: tune SO_RCVBUF: %w", err)
		}
	}
	return nil
}

// Fd returns the endpoint's underlying socket file descriptor, for a caller
// that needs to multiplex it against other readiness sources (e.g. a poll
// loop watching stdin and the socket on a single thread).
func (e *Endpoint) Fd() (int, error) {
	fd := netfd.GetFdFromConn(e.conn)
	if fd < 0 {
		return -1, fmt.Errorf("datagram: fd: could not obtain file descriptor")
	}
	return fd, nil
}
