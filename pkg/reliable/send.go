package reliable

import (
	"context"

	"github.com/jakmeier/osnet/pkg/segment"
	"github.com/jakmeier/osnet/pkg/wire"
)

// firstFree returns the smallest sequence number >= sendSeqno whose
// send slot is unoccupied, and whether the window has room at all.
func (c *Connection) firstFree() (seq uint32, ok bool) {
	for seq = c.sendSeqno; seq < c.sendSeqno+c.window; seq++ {
		if !c.sendBuf.At(seq).Occupied {
			return seq, true
		}
	}
	return 0, false
}

// allocationTarget implements the fill-up policy: when the most
// recently allocated slot has already been put on the wire,
// the next byte goes into a fresh slot; otherwise it tops up that
// still-unsent slot.
func (c *Connection) allocationTarget() (seq uint32, slot *segment.Slot, isFresh bool, ok bool) {
	free, hasRoom := c.firstFree()
	if c.lc.lastAllocAlreadySent {
		if !hasRoom {
			return 0, nil, false, false
		}
		return free, c.sendBuf.At(free), true, true
	}
	// The previous allocation (free-1, mod W conceptually) is still
	// under-full and unsent; top it up instead of taking a new slot.
	prev := free - 1
	if !hasRoom {
		// Every slot is occupied, so the previous allocation is the
		// last one in the window.
		prev = c.sendSeqno + c.window - 1
	}
	return prev, c.sendBuf.At(prev), false, true
}

// appendAndMaybeTransmit implements the transmit decision and action
// after input bytes have been appended to the target slot.
func (c *Connection) appendAndMaybeTransmit(ctx context.Context, seq uint32, slot *segment.Slot, isFresh bool) {
	if isFresh {
		slot.Occupied = true
	}

	transmit := slot.Full() || !c.lc.smallPacketOnline

	if !transmit {
		// Held back: a small packet is already in flight, so don't
		// add a second one. Clear lastAllocAlreadySent so the next
		// input tops this slot up instead of taking a fresh one.
		c.lc.lastAllocAlreadySent = false
		return
	}

	c.transmit(ctx, seq, slot)
	c.lc.lastAllocAlreadySent = true
	if !slot.Full() {
		c.lc.smallPacketOnline = true
	}
}

// transmit encodes and sends the slot's current payload with the
// current recvSeqno piggybacked as the ack. It does not change
// occupancy or lifecycle flags; callers decide those.
func (c *Connection) transmit(ctx context.Context, seq uint32, slot *segment.Slot) {
	_ = ctx
	datagram := wire.EncodeData(c.sendScratch, seq, c.recvSeqno, slot.Payload())
	c.host.SendPacket(datagram)
}

// retransmitSweep resends every occupied slot in the current send
// window using the latest recvSeqno as piggyback ack. There is no
// per-packet deadline: every tick retransmits every unacknowledged
// in-window slot.
func (c *Connection) retransmitSweep(ctx context.Context) {
	for seq := c.sendSeqno; seq < c.sendSeqno+c.window; seq++ {
		slot := c.sendBuf.At(seq)
		if slot.Occupied {
			c.transmit(ctx, seq, slot)
			c.host.PacketRetransmitted()
		}
	}
}
