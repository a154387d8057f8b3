package reliable

import (
	"context"

	"github.com/datawire/dlib/dlog"

	"github.com/jakmeier/osnet/pkg/segment"
	"github.com/jakmeier/osnet/pkg/wire"
)

// handlePacket validates an inbound datagram and, if it advances the
// connection, stores and possibly delivers it: cumulative ack, ack-only
// short-circuit, window check, duplicate check, EOF detection, storage,
// then a delivery attempt.
func (c *Connection) handlePacket(ctx context.Context, pkt wire.Packet) {
	// 1. Cumulative ack processing.
	if pkt.Ackno > c.sendSeqno {
		c.ackThrough(pkt.Ackno)
	}

	// 2. Ack-only?
	if pkt.IsAck {
		return
	}

	// 3. Window check.
	if !c.recvBuf.InWindow(pkt.Seqno, c.recvSeqno) {
		c.host.PacketDropped()
		return
	}

	// 4. Duplicate check.
	slot := c.recvBuf.At(pkt.Seqno)
	if slot.Occupied {
		c.host.PacketDropped()
		return
	}

	// 5. EOF marker?
	if pkt.IsEOF() {
		c.lc.eofRecv = true
		dlog.Debugf(ctx, "CON %s eof received at seqno %d", c.ID, pkt.Seqno)
	}

	// 6. Store.
	slot.Set(pkt.Payload)

	// 7. Kick delivery.
	if pkt.Seqno == c.recvSeqno {
		c.pumpOutput(ctx)
	}
}

// ackThrough marks slots [sendSeqno, ackno) unoccupied and advances
// sendSeqno, clearing smallPacketOnline for any freed slot shorter
// than a full segment.
func (c *Connection) ackThrough(ackno uint32) {
	for seq := c.sendSeqno; seq != ackno; seq++ {
		slot := c.sendBuf.At(seq)
		if slot.Occupied && slot.Len < segment.MaxPayload {
			c.lc.smallPacketOnline = false
		}
		slot.Clear()
	}
	c.sendSeqno = ackno
}
