//go:build linux || darwin

package transport

import (
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// recvBufferBytes is generous relative to a single 512-byte datagram:
// it lets the kernel absorb a burst of retransmissions without
// dropping packets before the read loop gets a chance to drain them.
const recvBufferBytes = 1 << 20

// tosLowDelay is IPTOS_LOWDELAY: this protocol retransmits on a short
// fixed tick rather than an RTT estimate, so marking its datagrams for
// low latency over throughput is the closer fit of the two classic TOS
// presets.
const tosLowDelay = 0x10

// tuneReceiveBuffer sets SO_RCVBUF directly via the raw file
// descriptor, the same way low-level network tooling reaches past
// net.UDPConn's portable API for socket-level tuning, and marks
// outgoing datagrams IPTOS_LOWDELAY via golang.org/x/net/ipv4. Errors
// from either are non-fatal: the socket still works with OS defaults.
func tuneReceiveBuffer(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvBufferBytes)
	})
	_ = ipv4.NewConn(conn).SetTOS(tosLowDelay)
}
