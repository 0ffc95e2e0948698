package qnet

import "encoding/binary"

// headerSize is the width of the length prefix on the wire: a 4-byte
// big-endian unsigned length, followed by exactly that many payload bytes.
// A length of zero denotes a heartbeat and carries no payload (§4.1).
const headerSize = 4

// DefaultMaxFrameSize is the frame-size ceiling applied when a Config does
// not override it. The wire format itself allows up to 2^31-1; this default
// is a much smaller, sane sanity limit against a runaway or hostile peer.
const DefaultMaxFrameSize = 16 << 20 // 16 MiB

// maxWireFrameSize is the hard ceiling the length prefix can express.
const maxWireFrameSize = 1<<31 - 1

// frameHeader encodes a payload length as the 4-byte big-endian wire header.
func frameHeader(n int) [headerSize]byte {
	var hdr [headerSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(n))
	return hdr
}

// decodeFrameLength reads the declared payload length out of a received
// header. A zero length denotes a heartbeat frame.
func decodeFrameLength(hdr [headerSize]byte) uint32 {
	return binary.BigEndian.Uint32(hdr[:])
}

// heartbeatHeader is the header of the zero-length frame consumed internally by the reader
// loop and never surfaced to a caller as a Payload event (§4.1, §4.2).
var heartbeatHeader = frameHeader(0)
