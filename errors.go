package qnet

import "errors"

var (
	// ErrFrameTooLarge is returned (and treated as a protocol error, §7) when a
	// peer declares a frame length exceeding MaxFrameSize.
	ErrFrameTooLarge = errors.New("qnet: frame exceeds configured maximum size")

	// ErrClosed is returned by operations attempted on an endpoint or reactor
	// that has already finished tearing down.
	ErrClosed = errors.New("qnet: endpoint closed")

	// ErrQueueClosed names the closed-queue condition. Queue's own methods
	// do not return it; they report a closed queue through their boolean
	// results.
	ErrQueueClosed = errors.New("qnet: queue closed")

	// ErrEmptyPayload is returned when a caller tries to enqueue a zero-length
	// outbound payload; the wire format reserves length 0 for heartbeats, so
	// empty application messages are disallowed at the public surface (§4.1).
	ErrEmptyPayload = errors.New("qnet: empty payload is reserved for heartbeats")
)
