//go:build !linux && !darwin

package transport

import "net"

// tuneReceiveBuffer is a no-op on platforms where SO_RCVBUF tuning via
// golang.org/x/sys/unix isn't applicable.
func tuneReceiveBuffer(conn *net.UDPConn) {
	_ = conn
}
