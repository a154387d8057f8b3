package reliable

import (
	"context"

	"github.com/jakmeier/osnet/pkg/wire"
)

// pumpOutput delivers contiguous received data to the application sink
// in sequence order. It is invoked whenever a packet arrives at the
// current recvSeqno and on every tick (to retry a write the sink cut
// short), and may drain several slots in one
// pass if they were all buffered out of order ahead of time.
func (c *Connection) pumpOutput(ctx context.Context) {
	delivered := false

	for {
		slot := c.recvBuf.At(c.recvSeqno)
		if !slot.Occupied {
			break
		}

		remaining := slot.Payload()[c.alreadyWritten:]
		n := c.host.Output(remaining)

		if n == len(remaining) {
			slot.Clear()
			c.alreadyWritten = 0
			c.recvSeqno++
			delivered = true
			continue
		}

		c.alreadyWritten += n
		break
	}

	if delivered {
		ack := wire.EncodeAck(c.ackScratch, c.recvSeqno)
		c.host.SendPacket(ack)
	}

	if c.lc.eofRecv && !c.anyRecvOccupied() {
		c.lc.allWritten = true
	}
}

func (c *Connection) anyRecvOccupied() bool {
	for seq := c.recvSeqno; seq < c.recvSeqno+c.window; seq++ {
		if c.recvBuf.At(seq).Occupied {
			return true
		}
	}
	return false
}
