package qnet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func popEvent(t *testing.T, q *Queue[Event], timeout time.Duration) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ev, ok := q.Pop(ctx)
	require.True(t, ok, "expected an event before timeout")
	return ev
}

// TestConnectAcceptHandshake covers the status-prefix property: a client
// connects, a server accepts, and the first inbound item on both sides is
// Connected.
func TestConnectAcceptHandshake(t *testing.T) {
	r := EventLoop()
	defer r.Shutdown()

	srv, err := Accept(r, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cli, err := Connect(r, "tcp", srv.Addr.String())
	require.NoError(t, err)

	ev := popEvent(t, cli.Inbound, time.Second)
	assert.Equal(t, EventConnected, ev.Kind)

	acceptedHandle, ok := srv.Accept.Pop(context.Background())
	require.True(t, ok)

	ev = popEvent(t, acceptedHandle.Inbound, time.Second)
	assert.Equal(t, EventConnected, ev.Kind)
}

// TestPushDeliversPayloadInOrder covers scenario E1 (push) and the order
// preservation testable property: messages arrive in the order they were
// sent.
func TestPushDeliversPayloadInOrder(t *testing.T) {
	r := EventLoop()
	defer r.Shutdown()

	srv, err := Accept(r, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cli, err := Connect(r, "tcp", srv.Addr.String())
	require.NoError(t, err)

	require.Equal(t, EventConnected, popEvent(t, cli.Inbound, time.Second).Kind)
	accepted, ok := srv.Accept.Pop(context.Background())
	require.True(t, ok)
	require.Equal(t, EventConnected, popEvent(t, accepted.Inbound, time.Second).Kind)

	messages := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, m := range messages {
		require.NoError(t, cli.Send(m))
	}

	for _, want := range messages {
		ev := popEvent(t, accepted.Inbound, time.Second)
		require.Equal(t, EventPayload, ev.Kind)
		assert.Equal(t, want, ev.Payload)
	}

	// E1: the client closes its own outbound, which must drain cleanly to
	// Closed on both sides with no Disconnected in between — losing the
	// socket this way is a deliberate local close, not a reconnect trigger.
	cli.Outbound.Close()

	closedOnClient := popEvent(t, cli.Inbound, time.Second)
	assert.Equal(t, EventClosed, closedOnClient.Kind)

	closedOnServer := popEvent(t, accepted.Inbound, time.Second)
	assert.Equal(t, EventClosed, closedOnServer.Kind)
}

// TestSendRejectsEmptyPayload covers spec.md §4.1: an empty application
// message is disallowed at the public surface because the wire format
// reserves a zero-length frame for heartbeats.
func TestSendRejectsEmptyPayload(t *testing.T) {
	r := EventLoop()
	defer r.Shutdown()

	srv, err := Accept(r, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cli, err := Connect(r, "tcp", srv.Addr.String())
	require.NoError(t, err)

	require.Equal(t, EventConnected, popEvent(t, cli.Inbound, time.Second).Kind)
	accepted, ok := srv.Accept.Pop(context.Background())
	require.True(t, ok)
	require.Equal(t, EventConnected, popEvent(t, accepted.Inbound, time.Second).Kind)

	assert.ErrorIs(t, cli.Send(nil), ErrEmptyPayload)
	assert.ErrorIs(t, cli.Send([]byte{}), ErrEmptyPayload)

	// A real message still goes through, and the accepted side never saw a
	// phantom payload from the rejected sends above.
	require.NoError(t, cli.Send([]byte("real")))
	ev := popEvent(t, accepted.Inbound, time.Second)
	assert.Equal(t, EventPayload, ev.Kind)
	assert.Equal(t, []byte("real"), ev.Payload)
}

// TestRequestReply covers scenario E3: a client sends a request and reads a
// correlated reply off the same connection.
func TestRequestReply(t *testing.T) {
	r := EventLoop()
	defer r.Shutdown()

	srv, err := Accept(r, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cli, err := Connect(r, "tcp", srv.Addr.String())
	require.NoError(t, err)

	require.Equal(t, EventConnected, popEvent(t, cli.Inbound, time.Second).Kind)
	accepted, ok := srv.Accept.Pop(context.Background())
	require.True(t, ok)
	require.Equal(t, EventConnected, popEvent(t, accepted.Inbound, time.Second).Kind)

	require.NoError(t, cli.Send([]byte("request")))
	req := popEvent(t, accepted.Inbound, time.Second)
	assert.Equal(t, []byte("request"), req.Payload)

	require.NoError(t, accepted.Send([]byte("reply")))
	reply := popEvent(t, cli.Inbound, time.Second)
	assert.Equal(t, []byte("reply"), reply.Payload)
}

// TestTwoClientsAreIndependent covers scenario E4: two clients against one
// listener do not see each other's traffic.
func TestTwoClientsAreIndependent(t *testing.T) {
	r := EventLoop()
	defer r.Shutdown()

	srv, err := Accept(r, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	// Client B dials only after A's accepted handle is in hand, so acceptedA
	// is known to be A's peer; concurrent dials may be accepted in any order.
	cliA, err := Connect(r, "tcp", srv.Addr.String())
	require.NoError(t, err)
	require.Equal(t, EventConnected, popEvent(t, cliA.Inbound, time.Second).Kind)
	acceptedA, ok := srv.Accept.Pop(context.Background())
	require.True(t, ok)

	cliB, err := Connect(r, "tcp", srv.Addr.String())
	require.NoError(t, err)
	require.Equal(t, EventConnected, popEvent(t, cliB.Inbound, time.Second).Kind)
	acceptedB, ok := srv.Accept.Pop(context.Background())
	require.True(t, ok)
	require.Equal(t, EventConnected, popEvent(t, acceptedA.Inbound, time.Second).Kind)
	require.Equal(t, EventConnected, popEvent(t, acceptedB.Inbound, time.Second).Kind)

	require.NoError(t, acceptedA.Send([]byte("for-a")))

	ev := popEvent(t, cliA.Inbound, time.Second)
	assert.Equal(t, []byte("for-a"), ev.Payload)

	_, _, timedOut := cliB.Inbound.PopTimeout(100 * time.Millisecond)
	assert.True(t, timedOut, "client B must not observe client A's traffic")
}

// TestAutoReconnectAfterServerDrop covers the auto-reconnect testable
// property (a variant of scenario E5 in which the listener stays up): a
// client whose idle connection is dropped by the server observes
// Disconnected then a fresh Connected, and a payload sent after the
// reconnect reaches the new accepted endpoint.
func TestAutoReconnectAfterServerDrop(t *testing.T) {
	r := EventLoop()
	defer r.Shutdown()

	srv, err := Accept(r, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cli, err := Connect(r, "tcp", srv.Addr.String(), WithReconnectPeriod(50*time.Millisecond))
	require.NoError(t, err)

	require.Equal(t, EventConnected, popEvent(t, cli.Inbound, time.Second).Kind)
	accepted, ok := srv.Accept.Pop(context.Background())
	require.True(t, ok)
	require.Equal(t, EventConnected, popEvent(t, accepted.Inbound, time.Second).Kind)

	// Sever the server side of this one connection; the client endpoint
	// must notice, reconnect, and the listener must hand out a second
	// accepted handle.
	accepted.Outbound.Close()

	ev := popEvent(t, cli.Inbound, 2*time.Second)
	assert.Equal(t, EventDisconnected, ev.Kind)

	ev = popEvent(t, cli.Inbound, 2*time.Second)
	assert.Equal(t, EventConnected, ev.Kind)

	second, ok := srv.Accept.Pop(context.Background())
	require.True(t, ok)
	require.Equal(t, EventConnected, popEvent(t, second.Inbound, time.Second).Kind)

	require.NoError(t, cli.Send([]byte("after-reconnect")))
	payload := popEvent(t, second.Inbound, time.Second)
	assert.Equal(t, []byte("after-reconnect"), payload.Payload)
}

// TestCloseWhileDisconnected covers scenario E6: a client whose connect
// attempt failed reports Disconnected, and closing its outbound queue while
// it is mid-backoff still reaches a terminal Closed event instead of
// hanging forever.
func TestCloseWhileDisconnected(t *testing.T) {
	r := EventLoop()

	cli, err := Connect(r, "tcp", "127.0.0.1:1", WithReconnectPeriod(time.Second))
	require.NoError(t, err)

	ev := popEvent(t, cli.Inbound, 2*time.Second)
	assert.Equal(t, EventDisconnected, ev.Kind)

	cli.Outbound.Close()

	ev = popEvent(t, cli.Inbound, 2*time.Second)
	assert.Equal(t, EventClosed, ev.Kind)

	_, ok := cli.Inbound.Pop(context.Background())
	assert.False(t, ok)

	r.Shutdown()
}

// TestShutdownCompleteness covers the shutdown-completeness testable
// property: Reactor.Shutdown returns only after every endpoint has posted
// its terminal Closed event.
func TestShutdownCompleteness(t *testing.T) {
	r := EventLoop()

	srv, err := Accept(r, "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cli, err := Connect(r, "tcp", srv.Addr.String())
	require.NoError(t, err)

	require.Equal(t, EventConnected, popEvent(t, cli.Inbound, time.Second).Kind)
	accepted, ok := srv.Accept.Pop(context.Background())
	require.True(t, ok)
	require.Equal(t, EventConnected, popEvent(t, accepted.Inbound, time.Second).Kind)

	r.Shutdown()

	assert.True(t, cli.Inbound.IsClosed())
	assert.True(t, accepted.Inbound.IsClosed())
}

// TestAcceptRebindAfterClose covers the idempotent-bind-release testable
// property: once a listener is closed, the same address can be bound
// again immediately.
func TestAcceptRebindAfterClose(t *testing.T) {
	r := EventLoop()
	defer r.Shutdown()

	first, err := Accept(r, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := first.Addr.String()

	r.Shutdown()

	r2 := EventLoop()
	defer r2.Shutdown()

	_, err = Accept(r2, "tcp", addr)
	assert.NoError(t, err)
}
