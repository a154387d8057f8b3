package reliable

// The accessors below expose the teardown flags read-only, mainly so
// tests can assert on the state machine without reaching into
// unexported fields from outside the package.

// EOFReceived reports whether the peer's end-of-stream marker has
// entered the receive window.
func (c *Connection) EOFReceived() bool { return c.lc.eofRecv }

// EOFRead reports whether the local application input source has
// signaled end-of-file.
func (c *Connection) EOFRead() bool { return c.lc.eofRead }

// AllSentAcknowledged reports whether every segment ever transmitted
// has been acknowledged.
func (c *Connection) AllSentAcknowledged() bool { return c.lc.allSentAcknowledged }

// AllWritten reports whether every received segment has been
// delivered to the application sink.
func (c *Connection) AllWritten() bool { return c.lc.allWritten }

// RecvSeqno returns the next in-order sequence number expected from
// the peer.
func (c *Connection) RecvSeqno() uint32 { return c.recvSeqno }

// SendSeqno returns the oldest unacknowledged sequence number.
func (c *Connection) SendSeqno() uint32 { return c.sendSeqno }

// SmallPacketOnline reports whether an unacknowledged outbound
// segment shorter than a full slot is currently on the wire.
func (c *Connection) SmallPacketOnline() bool { return c.lc.smallPacketOnline }
