// Package wire implements the on-wire packet format: header layout,
// the Internet checksum, and the encode/decode contracts consumed by
// pkg/reliable and pkg/transport.
package wire

import (
	"encoding/binary"

	"github.com/jakmeier/osnet/pkg/segment"
)

// Wire layout offsets and sizes, all integers big-endian.
const (
	HeaderLen   = 8  // checksum(2) + length(2) + ackno(4)
	SeqLen      = 4  // seqno, present when length >= DataHeaderLen
	DataHeaderLen = HeaderLen + SeqLen // 12
	MaxPacketLen  = DataHeaderLen + segment.MaxPayload // 512

	offChecksum = 0
	offLength   = 2
	offAckno    = 4
	offSeqno    = 8
	offPayload  = 12
)

// Packet is a decoded datagram. Ack-only packets have Seqno == 0 and
// Payload == nil; data packets (including the zero-length EOF marker)
// carry a Seqno.
type Packet struct {
	Ackno   uint32
	Seqno   uint32
	Payload []byte
	IsAck   bool
}

// IsEOF reports whether this is the zero-payload end-of-stream marker
// (a data packet whose total wire length is exactly DataHeaderLen).
func (p Packet) IsEOF() bool {
	return !p.IsAck && len(p.Payload) == 0
}

// EncodeAck writes an 8-byte ack-only datagram into buf and returns the
// slice actually used. buf must have capacity >= HeaderLen.
func EncodeAck(buf []byte, ackno uint32) []byte {
	b := buf[:HeaderLen]
	binary.BigEndian.PutUint16(b[offLength:], HeaderLen)
	binary.BigEndian.PutUint32(b[offAckno:], ackno)
	binary.BigEndian.PutUint16(b[offChecksum:], 0)
	binary.BigEndian.PutUint16(b[offChecksum:], checksum(b))
	return b
}

// EncodeData writes a data (or EOF, when payload is empty) datagram
// into buf and returns the slice actually used. buf must have capacity
// >= DataHeaderLen+len(payload).
func EncodeData(buf []byte, seqno, ackno uint32, payload []byte) []byte {
	total := DataHeaderLen + len(payload)
	b := buf[:total]
	binary.BigEndian.PutUint16(b[offLength:], uint16(total))
	binary.BigEndian.PutUint32(b[offAckno:], ackno)
	binary.BigEndian.PutUint32(b[offSeqno:], seqno)
	copy(b[offPayload:], payload)
	binary.BigEndian.PutUint16(b[offChecksum:], 0)
	binary.BigEndian.PutUint16(b[offChecksum:], checksum(b))
	return b
}

// Decode validates and parses a received datagram of n bytes. It
// returns ok == false for any malformed packet (too short, length
// mismatch, bad checksum) — callers must silently discard those per
// the protocol's error-handling design.
func Decode(buf []byte, n int) (pkt Packet, ok bool) {
	if n < HeaderLen || n > MaxPacketLen {
		return Packet{}, false
	}
	b := buf[:n]
	if int(binary.BigEndian.Uint16(b[offLength:])) != n {
		return Packet{}, false
	}
	if checksum(b) != 0 {
		return Packet{}, false
	}
	pkt.Ackno = binary.BigEndian.Uint32(b[offAckno:])
	if n == HeaderLen {
		pkt.IsAck = true
		return pkt, true
	}
	if n < DataHeaderLen {
		return Packet{}, false
	}
	pkt.Seqno = binary.BigEndian.Uint32(b[offSeqno:])
	if n > DataHeaderLen {
		payload := make([]byte, n-DataHeaderLen)
		copy(payload, b[offPayload:])
		pkt.Payload = payload
	}
	return pkt, true
}

// checksum computes the 16-bit one's-complement Internet checksum (RFC
// 1071) over b as given. Encode zeroes the checksum field first and
// stores the result; Decode calls this on the packet exactly as
// received and expects zero back — folding the stored checksum back
// into the sum cancels it out iff the packet is intact.
func checksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
