package qnet

import "net"

// EventKind tags the inbound queue's item union (§6): Connected | Disconnected
// | Closed | Payload(bytes).
type EventKind int

const (
	// EventConnected is posted on every successful (re)establishment of a
	// socket, including the first (§4.2).
	EventConnected EventKind = iota

	// EventDisconnected is posted when a client endpoint loses its socket
	// or a connect attempt fails, and it will retry. Never posted for
	// accepted endpoints, which close instead (§3 Invariant 6).
	EventDisconnected

	// EventClosed is the terminal event: posted exactly once, as the final
	// inbound item, immediately before the inbound queue is closed (§3
	// Invariant 5).
	EventClosed

	// EventPayload carries one complete application message exactly as the
	// peer wrote it.
	EventPayload
)

// String renders the event kind for logging.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventClosed:
		return "closed"
	case EventPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Event is one item on an endpoint's inbound queue.
type Event struct {
	Kind EventKind

	// Payload holds the application message bytes; only meaningful when
	// Kind == EventPayload.
	Payload []byte
}

// Handle is the queue surface of a single connection: a client endpoint
// returned directly by Connect, or an accepted endpoint delivered through a
// listener's accept queue. Both cases share the same surface (§3).
type Handle struct {
	// Inbound yields Connected/Disconnected/Closed/Payload items in the
	// order the reactor produced them (§5).
	Inbound *Queue[Event]

	// Outbound accepts application payloads to send. Closing it is the
	// caller's signal to terminate the endpoint (§6).
	Outbound *Queue[[]byte]
}

// Send enqueues payload on the outbound queue. It is the validated public
// entry point for sending application messages: the wire format reserves a
// zero-length frame for heartbeats (§4.1), so an empty payload is rejected
// here rather than silently reaching the writer and being mistaken for one.
func (h *Handle) Send(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if !h.Outbound.PushBlocking(payload) {
		return ErrClosed
	}
	return nil
}

// ServerHandle is the queue surface of a listener endpoint.
type ServerHandle struct {
	// Accept yields a *Handle for every inbound connection. Closing this
	// queue from the caller side only discards further handles; it does not
	// stop the listener (§6) — Reactor.Shutdown does that.
	Accept *Queue[*Handle]

	// Addr is the socket's bound local address, useful when Accept was
	// called with an ephemeral port (":0").
	Addr net.Addr
}
