// MIT License
//
// Copyright (c) 2016-2017 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package qnet

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sagernet/sing/common/bufio"
	"go.uber.org/zap"
)

// endpointState is the per-endpoint lifecycle (§3). Accepted endpoints only
// ever move connecting(skipped) -> connected -> closed; client endpoints
// cycle connecting -> connected -> disconnected -> connecting until closed.
type endpointState int32

const (
	stateConnecting endpointState = iota
	stateConnected
	stateDisconnected
	stateClosed
)

func (s endpointState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateDisconnected:
		return "disconnected"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// errOutboundClosed is what writeLoop returns once the caller has closed the
// outbound queue and every queued payload has been written; closing the
// outbound queue is the documented way to ask an endpoint to terminate (§6).
var errOutboundClosed = errors.New("qnet: outbound queue closed")

// outFrame is one wire frame queued for the writer: either an application
// payload or (when payload is nil) a heartbeat.
type outFrame struct {
	header  [headerSize]byte
	payload []byte
}

// endpoint is one managed connection, client or accepted. It owns the
// queues a Handle exposes and runs the goroutines that pump bytes across the
// socket (the REDESIGN documented in DESIGN.md: a pump per endpoint rather
// than one shared selector thread).
type endpoint struct {
	id     string
	log    *zap.Logger
	cfg    Config
	inbd   *Queue[Event]
	outbd  *Queue[[]byte]
	dial   func(ctx context.Context) (net.Conn, error) // nil for accepted endpoints
	accept bool                                        // true if this endpoint came from a listener

	mu    sync.Mutex
	state endpointState
	pend  *outFrame // frame still in flight across a reconnect (§4.2 invariant)

	closeReq chan struct{} // closed once by requestClose
	closeOne sync.Once
	done     chan struct{} // closed once finalizeClosed has run
}

func newEndpoint(id string, log *zap.Logger, cfg Config, inbd *Queue[Event], outbd *Queue[[]byte], dial func(ctx context.Context) (net.Conn, error), accepted bool) *endpoint {
	return &endpoint{
		id:       id,
		log:      log,
		cfg:      cfg,
		inbd:     inbd,
		outbd:    outbd,
		dial:     dial,
		accept:   accepted,
		closeReq: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (e *endpoint) setState(s endpointState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *endpoint) getState() endpointState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// requestClose asks the endpoint to tear down. Safe to call more than once
// and from any goroutine.
func (e *endpoint) requestClose() {
	e.closeOne.Do(func() { close(e.closeReq) })
}

func (e *endpoint) closing() bool {
	select {
	case <-e.closeReq:
		return true
	default:
		return false
	}
}

// dialWithCancel runs e.dial under a context cancelled the moment
// requestClose fires, so Shutdown (or the caller closing the outbound queue)
// interrupts an in-flight connect attempt instead of waiting out the OS-level
// connect timeout (grounded on stripe-memlink's dial(ctx, ...) usage).
func (e *endpoint) dialWithCancel() (net.Conn, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-e.closeReq:
			cancel()
		case <-stop:
		}
	}()

	return e.dial(ctx)
}

// finalizeClosed posts the terminal Closed event and closes both queues,
// exactly once (§3 Invariant 5).
func (e *endpoint) finalizeClosed() {
	e.setState(stateClosed)
	e.inbd.PushBlocking(Event{Kind: EventClosed})
	e.inbd.Close()
	e.outbd.Close()
	close(e.done)
}

// manageClient drives a client endpoint's connect/run/reconnect cycle until
// requestClose fires or the outbound queue is closed by the caller.
func (e *endpoint) manageClient() {
	defer e.finalizeClosed()

	for {
		if e.closing() {
			return
		}

		e.setState(stateConnecting)
		conn, err := e.dialWithCancel()
		if err != nil {
			e.log.Debug("dial failed", zap.String("endpoint", e.id), zap.Error(err))
			if e.closing() || e.outbd.IsClosed() {
				return
			}
			e.setState(stateDisconnected)
			e.inbd.PushBlocking(Event{Kind: EventDisconnected})
			if !e.waitReconnect() {
				return
			}
			continue
		}

		e.setState(stateConnected)
		e.log.Info("connected", zap.String("endpoint", e.id), zap.String("remote", conn.RemoteAddr().String()))
		e.inbd.PushBlocking(Event{Kind: EventConnected})

		runErr := e.runConnection(conn)

		// A user-initiated close (Shutdown, or the caller closing its own
		// outbound queue) goes straight to closed with no Disconnected in
		// between (§6: "the endpoint drains in-flight writes and then
		// transitions to closed").
		if e.closing() || e.outbd.IsClosed() {
			return
		}

		e.setState(stateDisconnected)
		logDisconnect(e.log, e.id, runErr)
		e.inbd.PushBlocking(Event{Kind: EventDisconnected})

		if !e.waitReconnect() {
			return
		}
	}
}

// manageAccepted drives an accepted endpoint: one connection, no redial.
// Losing the socket is terminal (§3 Invariant 6).
func (e *endpoint) manageAccepted(conn net.Conn) {
	defer e.finalizeClosed()

	e.setState(stateConnected)
	e.inbd.PushBlocking(Event{Kind: EventConnected})

	runErr := e.runConnection(conn)
	logDisconnect(e.log, e.id, runErr)
}

// waitReconnect pauses for ReconnectPeriod, returning false if requestClose
// fires (or the outbound queue closes) while waiting, meaning the caller
// should stop retrying.
func (e *endpoint) waitReconnect() bool {
	timer := time.NewTimer(e.cfg.ReconnectPeriod)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-e.closeReq:
		return false
	case <-e.outbd.Done():
		e.requestClose()
		return false
	}
}

// runConnection owns one live socket: it starts the reader and writer
// pumps, waits for either to end, then tears the socket down and returns
// the reason. requestClose (or the outbound queue closing) also unblocks it
// by forcing the socket closed out from under the pumps, the same trick
// smux's die channel plays against its blocking I/O.
func (e *endpoint) runConnection(conn net.Conn) error {
	stop := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	var stopOnce sync.Once
	closeConn := func() { stopOnce.Do(func() { close(stop); cancel(); conn.Close() }) }

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- e.readLoop(conn)
		closeConn()
	}()
	go func() {
		defer wg.Done()
		errs <- e.writeLoop(ctx, conn)
		closeConn()
	}()

	// Only requestClose forces the socket shut immediately. A user closing
	// their own outbound queue is a graceful request: writeLoop drains
	// whatever was already queued and closes the connection itself once it
	// observes the queue empty and closed (§6: "drains in-flight writes and
	// then transitions to closed").
	go func() {
		select {
		case <-e.closeReq:
			closeConn()
		case <-stop:
		}
	}()

	wg.Wait()
	close(errs)

	var first error
	for err := range errs {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// readLoop reads frames off conn and posts application payloads to the
// inbound queue, dropping heartbeats silently (§4.1, §4.2).
func (e *endpoint) readLoop(conn net.Conn) error {
	for {
		payload, heartbeat, err := readFrame(conn, e.cfg.HeartbeatTimeout, e.cfg.MaxFrameSize)
		if err != nil {
			return err
		}
		if heartbeat {
			continue
		}
		if !e.inbd.PushBlocking(Event{Kind: EventPayload, Payload: payload}) {
			return nil
		}
	}
}

// writeLoop drains the outbound queue and writes wire frames, falling back
// to an idle-timeout heartbeat exactly like smux's keepalive ticker, except
// driven by a Pop deadline instead of a separate goroutine. It returns nil
// as soon as ctx is cancelled, i.e. once the connection is being torn down.
// A frame that was handed to the socket but not yet confirmed written is
// kept in e.pend so a torn-down connection retransmits it verbatim after
// reconnecting (§4.2).
func (e *endpoint) writeLoop(ctx context.Context, conn net.Conn) error {
	for {
		e.mu.Lock()
		frame := e.pend
		e.mu.Unlock()

		if frame == nil {
			popCtx, cancel := context.WithTimeout(ctx, e.cfg.HeartbeatPeriod)
			payload, ok := e.outbd.Pop(popCtx)
			timedOut := !ok && popCtx.Err() == context.DeadlineExceeded
			cancel()
			switch {
			case ok:
				frame = &outFrame{header: frameHeader(len(payload)), payload: payload}
			case ctx.Err() != nil:
				return nil
			case timedOut:
				frame = &outFrame{header: heartbeatHeader}
			default:
				return errOutboundClosed
			}
			e.mu.Lock()
			e.pend = frame
			e.mu.Unlock()
		}

		if err := writeFrame(conn, *frame); err != nil {
			return err
		}

		e.mu.Lock()
		e.pend = nil
		e.mu.Unlock()
	}
}

// logDisconnect classifies why a connection ended and logs at the level
// spec.md §7's error-kind table specifies: orderly remote close drops to
// Debug (same level as a failed connect attempt), while a peer reset/I/O
// error or a stall is logged one level higher, at Warn.
func logDisconnect(log *zap.Logger, id string, err error) {
	fields := []zap.Field{zap.String("endpoint", id), zap.Error(err)}
	switch {
	case err == nil, errors.Is(err, io.EOF):
		log.Debug("disconnected (orderly close)", fields...)
	case isStallError(err):
		log.Warn("disconnected (stall)", fields...)
	default:
		log.Warn("disconnected (peer reset or I/O error)", fields...)
	}
}

// isStallError reports whether err came from a read/write deadline expiring,
// i.e. the heartbeat-timeout stall detector (§4.2, §7), rather than the peer
// actually closing or resetting the socket.
func isStallError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// readFrame reads one length-prefixed frame, resetting the read deadline
// before every underlying Read so any forward progress — not just a whole
// frame — resets the stall timer (grounded on connection.go's
// SetReadDeadline-before-read idiom).
func readFrame(conn net.Conn, timeout time.Duration, maxSize int) (payload []byte, heartbeat bool, err error) {
	var hdr [headerSize]byte
	if err = readExact(conn, hdr[:], timeout); err != nil {
		return nil, false, err
	}
	n := decodeFrameLength(hdr)
	if n == 0 {
		return nil, true, nil
	}
	if maxSize > 0 && int(n) > maxSize {
		return nil, false, ErrFrameTooLarge
	}
	payload = make([]byte, n)
	if err = readExact(conn, payload, timeout); err != nil {
		return nil, false, err
	}
	return payload, false, nil
}

func readExact(conn net.Conn, buf []byte, timeout time.Duration) error {
	read := 0
	for read < len(buf) {
		if timeout > 0 {
			conn.SetReadDeadline(time.Now().Add(timeout))
		}
		n, err := conn.Read(buf[read:])
		read += n
		if err != nil {
			if read < len(buf) {
				return err
			}
			if err != io.EOF {
				return err
			}
		}
	}
	return nil
}

// writeFrame writes one frame using a vectorised [header, payload] write
// when the connection supports it, the same call shape as smux's sendLoop.
func writeFrame(conn net.Conn, f outFrame) error {
	if len(f.payload) == 0 {
		_, err := conn.Write(f.header[:])
		return err
	}
	if bw, ok := bufio.CreateVectorisedWriter(conn); ok {
		_, err := bufio.WriteVectorised(bw, [][]byte{f.header[:], f.payload})
		return err
	}
	buf := make([]byte, headerSize+len(f.payload))
	copy(buf, f.header[:])
	copy(buf[headerSize:], f.payload)
	_, err := conn.Write(buf)
	return err
}
