// Package reliable implements the per-connection reliability state
// machine: paired sliding windows, packet validation, retransmission
// and acknowledgement policy, input buffering with the fill-up
// optimization, and the end-of-stream teardown handshake.
//
// One owner goroutine drives both the receive path (OnPacket) and the
// timer path (Tick), so the windows below need no internal locking.
package reliable

import (
	"context"

	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"

	"github.com/jakmeier/osnet/pkg/segment"
	"github.com/jakmeier/osnet/pkg/wire"
)

// lifecycle holds the six boolean lifecycle flags: the first four form
// the teardown handshake, the last two drive the fill-up policy.
// They are kept as independent named booleans rather than folded into
// a single enum: eofRecv, eofRead and
// lastAllocatedAlreadySent are independent axes (each can flip at an
// arbitrary point relative to the others), so a single state enum
// would need to enumerate their cross product instead of eliminating
// it.
type lifecycle struct {
	eofRecv               bool
	eofRead               bool
	allSentAcknowledged   bool
	allWritten            bool
	lastAllocAlreadySent  bool
	smallPacketOnline     bool
}

// Connection is the per-peer reliability state machine. All methods
// must be called from a single goroutine; pkg/transport is responsible
// for that serialization.
type Connection struct {
	ID uuid.UUID

	host   Host
	window uint32 // W, immutable after construction

	recvBuf *segment.Window
	sendBuf *segment.Window

	recvSeqno uint32 // next in-order seqno expected from the peer
	sendSeqno uint32 // oldest unacknowledged seqno

	alreadyWritten int // partial-delivery cursor into recvBuf.At(recvSeqno)

	lc lifecycle

	destroyed bool

	// scratch buffers reused across calls to avoid per-packet
	// allocation in the hot path.
	sendScratch []byte
	ackScratch  []byte
}

// New constructs a Connection bound to host with window size w slots.
// Sequence numbers start at 1.
func New(host Host, w int) *Connection {
	return &Connection{
		ID:        uuid.New(),
		host:      host,
		window:    uint32(w),
		recvBuf:   segment.NewWindow(w),
		sendBuf:   segment.NewWindow(w),
		recvSeqno: 1,
		sendSeqno: 1,
		lc: lifecycle{
			// No slot has been allocated yet, so the next
			// allocation must take a fresh one.
			lastAllocAlreadySent: true,
		},
		sendScratch: make([]byte, wire.MaxPacketLen),
		ackScratch:  make([]byte, wire.HeaderLen),
	}
}

// Destroyed reports whether all four teardown flags have fired and the
// connection has been torn down. Once true, Tick and OnPacket are no
// longer meaningful and the owning container should drop its
// reference so the buffers can be collected.
func (c *Connection) Destroyed() bool {
	return c.destroyed
}

// Tick is the timer entry point: retry any delivery a backpressured
// sink cut short, pump input, sweep retransmissions, then evaluate the
// teardown condition.
func (c *Connection) Tick(ctx context.Context) {
	if c.destroyed {
		return
	}
	c.pumpOutput(ctx)
	c.pumpInput(ctx)
	c.retransmitSweep(ctx)

	if c.lc.eofRead && !c.anySendOccupied() {
		c.lc.allSentAcknowledged = true
	}
	c.maybeDestroy(ctx)
}

// OnPacket is the receive entry point: validate, process, and kick
// delivery.
func (c *Connection) OnPacket(ctx context.Context, datagram []byte, n int) {
	if c.destroyed {
		return
	}
	pkt, ok := wire.Decode(datagram, n)
	if !ok {
		c.host.PacketDropped()
		return
	}
	c.handlePacket(ctx, pkt)
	c.maybeDestroy(ctx)
}

func (c *Connection) anySendOccupied() bool {
	for seq := c.sendSeqno; seq < c.sendSeqno+c.window; seq++ {
		if c.sendBuf.At(seq).Occupied {
			return true
		}
	}
	return false
}

func (c *Connection) maybeDestroy(ctx context.Context) {
	if c.destroyed {
		return
	}
	if c.lc.eofRecv && c.lc.eofRead && c.lc.allSentAcknowledged && c.lc.allWritten {
		dlog.Debugf(ctx, "CON %s all four teardown flags set, destroying", c.ID)
		c.destroyed = true
	}
}
