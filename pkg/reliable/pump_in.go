package reliable

import "context"

// pumpInput is the timer-driven input pump. It pulls at most one chunk
// of application bytes per tick — draining the
// source across ticks rather than looping within one, so a fast
// writer can never starve the retransmission sweep that runs right
// after it.
func (c *Connection) pumpInput(ctx context.Context) {
	if c.lc.eofRead {
		return
	}

	seq, slot, isFresh, ok := c.allocationTarget()
	if !ok {
		// Send window full; try again next tick.
		return
	}

	avail := slot.Capacity()
	if avail == 0 {
		return
	}

	var chunk [512]byte
	n, eof := c.host.Input(chunk[:avail])

	if eof {
		c.sendEOFMarker(ctx)
		return
	}
	if n == 0 {
		return
	}

	if isFresh {
		slot.Occupied = true
	}
	slot.Append(chunk[:n])
	c.appendAndMaybeTransmit(ctx, seq, slot, false)
}

// sendEOFMarker allocates a fresh zero-payload slot at first_free and
// transmits the length-12 EOF segment immediately, bypassing the
// fill-up policy — the end of the stream is never coalesced with data.
func (c *Connection) sendEOFMarker(ctx context.Context) {
	seq, ok := c.firstFree()
	if !ok {
		// No room to record the EOF marker yet; retry next tick.
		return
	}
	slot := c.sendBuf.At(seq)
	slot.Occupied = true
	slot.Len = 0

	c.transmit(ctx, seq, slot)
	c.lc.lastAllocAlreadySent = true
	c.lc.smallPacketOnline = true
	c.lc.eofRead = true
}
