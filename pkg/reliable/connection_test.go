package reliable_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakmeier/osnet/pkg/reliable"
	"github.com/jakmeier/osnet/pkg/wire"
)

func encodeDataFor(buf []byte, seq uint32, payload string) []byte {
	return wire.EncodeData(buf, seq, 1, []byte(payload))
}

// scriptedHost is an in-memory Host: Input is fed from a fixed byte
// slice (signaling EOF once exhausted), Output appends to an internal
// buffer (optionally capped to simulate a backpressured sink), and
// SendPacket appends a copy of each datagram to outbox for the test
// to route by hand.
type scriptedHost struct {
	toSend  []byte
	sentPos int
	eofSent bool

	outCap   int // 0 means unlimited
	received []byte
	outbox   [][]byte

	dropped       int
	retransmitted int
}

func newScriptedHost(toSend []byte) *scriptedHost {
	return &scriptedHost{toSend: toSend}
}

func (h *scriptedHost) Input(buf []byte) (int, bool) {
	if h.sentPos >= len(h.toSend) {
		return 0, true
	}
	n := copy(buf, h.toSend[h.sentPos:])
	h.sentPos += n
	return n, false
}

func (h *scriptedHost) Output(buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	n := len(buf)
	if h.outCap > 0 && n > h.outCap {
		n = h.outCap
	}
	h.received = append(h.received, buf[:n]...)
	return n
}

func (h *scriptedHost) SendPacket(datagram []byte) {
	cp := make([]byte, len(datagram))
	copy(cp, datagram)
	h.outbox = append(h.outbox, cp)
}

func (h *scriptedHost) PacketDropped()       { h.dropped++ }
func (h *scriptedHost) PacketRetransmitted() { h.retransmitted++ }

func (h *scriptedHost) drain() [][]byte {
	out := h.outbox
	h.outbox = nil
	return out
}

func ctx() context.Context { return context.Background() }

// TestHelloDelivery checks a lossless exchange of "hello\n" ends with
// the receiver holding the bytes and the sender's window fully
// acknowledged.
func TestHelloDelivery(t *testing.T) {
	c := ctx()
	aHost := newScriptedHost([]byte("hello\n"))
	bHost := newScriptedHost(nil)

	a := reliable.New(aHost, 4)
	b := reliable.New(bHost, 4)

	a.Tick(c) // forms and sends the data segment; the same-tick resend
	// sweep immediately duplicates it once, which B's window check
	// (seqno 1 is then below its recvSeqno) must absorb without
	// double-delivering.
	pkts := aHost.drain()
	require.NotEmpty(t, pkts)
	for _, pkt := range pkts {
		b.OnPacket(c, pkt, len(pkt))
	}
	assert.Equal(t, "hello\n", string(bHost.received))

	acks := bHost.drain()
	require.Len(t, acks, 1)
	a.OnPacket(c, acks[0], len(acks[0]))

	assert.Equal(t, uint32(2), a.SendSeqno())
}

// TestRetransmissionAfterDrop checks a dropped packet is recovered by
// the tick-driven retransmission sweep.
func TestRetransmissionAfterDrop(t *testing.T) {
	c := ctx()
	payload := make([]byte, 1500)
	for i := range payload {
		payload[i] = byte(i)
	}
	aHost := newScriptedHost(payload)
	bHost := newScriptedHost(nil)

	a := reliable.New(aHost, 8)
	b := reliable.New(bHost, 8)

	droppedSeq1Once := false
	for i := 0; i < 12; i++ {
		a.Tick(c)
		for _, pkt := range aHost.drain() {
			decoded, ok := wire.Decode(pkt, len(pkt))
			if ok && !decoded.IsAck && decoded.Seqno == 1 && !droppedSeq1Once {
				droppedSeq1Once = true
				continue // simulate the one-time drop
			}
			b.OnPacket(c, pkt, len(pkt))
		}
		for _, ack := range bHost.drain() {
			a.OnPacket(c, ack, len(ack))
		}
	}

	require.True(t, droppedSeq1Once, "test setup expected to observe seqno 1 at least once")
	assert.Equal(t, payload, bHost.received)
}

// TestOutOfOrderDeliveryAndDuplicate checks that packets buffered out
// of order are delivered in one pass once the gap is filled, and a
// later duplicate is silently dropped.
func TestOutOfOrderDeliveryAndDuplicate(t *testing.T) {
	c := ctx()
	bHost := newScriptedHost(nil)
	b := reliable.New(bHost, 4)

	mk := func(seq uint32, payload string) []byte {
		buf := make([]byte, 512)
		return encodeDataFor(buf, seq, payload)
	}

	p3 := mk(3, "CCC")
	p2 := mk(2, "BB")
	p1 := mk(1, "A")

	b.OnPacket(c, p3, len(p3))
	b.OnPacket(c, p2, len(p2))
	assert.Empty(t, bHost.received)

	b.OnPacket(c, p1, len(p1))
	assert.Equal(t, "ABBCCC", string(bHost.received))
	assert.Equal(t, uint32(4), b.RecvSeqno())

	// Duplicate of seqno 2, already delivered: silently discarded, but
	// still observed as a drop.
	before := string(bHost.received)
	droppedBefore := bHost.dropped
	b.OnPacket(c, p2, len(p2))
	assert.Equal(t, before, string(bHost.received))
	assert.Equal(t, droppedBefore+1, bHost.dropped)
}

// TestHostObservesDropsAndRetransmits checks that the Host callbacks
// backing pkg/rmetrics' counters actually fire: a malformed datagram
// and an out-of-window packet are each counted as a drop, and the
// per-tick sweep counts every segment it resends.
func TestHostObservesDropsAndRetransmits(t *testing.T) {
	c := ctx()
	aHost := newScriptedHost([]byte("payload"))
	bHost := newScriptedHost(nil)
	a := reliable.New(aHost, 4)
	b := reliable.New(bHost, 4)

	garbage := []byte{0xde, 0xad, 0xbe, 0xef}
	b.OnPacket(c, garbage, len(garbage))
	assert.Equal(t, 1, bHost.dropped, "malformed datagram should be counted as a drop")

	outOfWindow := make([]byte, 512)
	outOfWindow = encodeDataFor(outOfWindow, 99, "late")
	b.OnPacket(c, outOfWindow, len(outOfWindow))
	assert.Equal(t, 2, bHost.dropped, "out-of-window datagram should be counted as a drop")

	assert.Zero(t, aHost.retransmitted)
	a.Tick(c)
	assert.NotZero(t, aHost.retransmitted, "the per-tick sweep should report at least one retransmit")
}

// TestSmallPacketInvariant checks that at most one unacknowledged
// outbound segment shorter than a full slot exists at a time.
func TestSmallPacketInvariant(t *testing.T) {
	c := ctx()
	aHost := newScriptedHost([]byte("0123456789"))
	a := reliable.New(aHost, 4)

	a.Tick(c) // sends "0123456789" as one small (10-byte) packet; the
	// same-tick resend sweep duplicates it, so expect >=1 identical copies.
	pkts := aHost.drain()
	require.NotEmpty(t, pkts)
	for _, pkt := range pkts {
		assert.Equal(t, pkts[0], pkt)
	}
	assert.True(t, a.SmallPacketOnline())

	// The scripted input is now exhausted, so this tick emits the
	// zero-length EOF marker at seqno 2 (which bypasses the fill-up
	// policy); apart from it, the tick only retransmits the same
	// occupied slot (the coarse per-tick resend sweep), never forming
	// a second, differently-seq'd data packet while the first remains
	// unacknowledged.
	a.Tick(c)
	resent := aHost.drain()
	require.NotEmpty(t, resent)
	for _, pkt := range resent {
		if decoded, ok := wire.Decode(pkt, len(pkt)); ok && decoded.IsEOF() {
			assert.Equal(t, uint32(2), decoded.Seqno)
			continue
		}
		assert.Equal(t, pkts[0], pkt)
	}
	assert.True(t, a.SmallPacketOnline())
}

// TestTeardownHandshake checks that once both sides have read EOF,
// exchanged data and ack'd it, all four teardown flags settle and the
// connection is destroyed.
func TestTeardownHandshake(t *testing.T) {
	c := ctx()
	aHost := newScriptedHost([]byte("hi"))
	bHost := newScriptedHost([]byte("yo"))
	a := reliable.New(aHost, 4)
	b := reliable.New(bHost, 4)

	for i := 0; i < 6; i++ {
		a.Tick(c)
		b.Tick(c)
		for _, pkt := range aHost.drain() {
			b.OnPacket(c, pkt, len(pkt))
		}
		for _, pkt := range bHost.drain() {
			a.OnPacket(c, pkt, len(pkt))
		}
	}

	assert.Equal(t, "yo", string(aHost.received))
	assert.Equal(t, "hi", string(bHost.received))
	assert.True(t, a.Destroyed())
	assert.True(t, b.Destroyed())
}
