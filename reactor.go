package qnet

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Reactor owns every endpoint and listener started through it and is the
// single handle Shutdown needs to tear the whole lot down (§4.3, §6).
//
// DESIGN.md documents the departure from a literal single-threaded selector
// loop: each endpoint and listener runs its own goroutines, and Reactor is
// the lightweight owner/registry that coordinates their shutdown, rather
// than a thread that multiplexes their sockets itself.
type Reactor struct {
	log *zap.Logger

	mu        sync.Mutex
	endpoints map[*endpoint]struct{}
	listeners map[*listener]struct{}
	wg        sync.WaitGroup
	closed    bool
}

// ReactorOption configures a Reactor at construction time.
type ReactorOption func(*Reactor)

// WithLogger attaches a structured logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) ReactorOption {
	return func(r *Reactor) { r.log = l }
}

// EventLoop constructs a Reactor. The name echoes spec.md's "reactor" / event
// loop vocabulary even though, per the REDESIGN note, no single thread ever
// runs a select/epoll loop itself.
func EventLoop(opts ...ReactorOption) *Reactor {
	r := &Reactor{
		log:       nopLogger(),
		endpoints: make(map[*endpoint]struct{}),
		listeners: make(map[*listener]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reactor) track(e *endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[e] = struct{}{}
}

func (r *Reactor) untrack(e *endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, e)
}

func (r *Reactor) trackListener(l *listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[l] = struct{}{}
}

func (r *Reactor) untrackListener(l *listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, l)
}

// Connect starts a client endpoint that dials addr, reconnecting on
// ReconnectPeriod whenever the socket is lost, until the returned Handle's
// Outbound queue is closed or Reactor.Shutdown runs (§4.2, §6).
func Connect(r *Reactor, network, addr string, opts ...Option) (*Handle, error) {
	cfg := buildConfig(opts)
	inbd, outbd := cfg.resolveQueues()

	var dialer net.Dialer
	dial := func(ctx context.Context) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}

	e := newEndpoint(newEndpointID(), r.log, cfg, inbd, outbd, dial, false)
	r.track(e)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.untrack(e)
		e.manageClient()
	}()

	return &Handle{Inbound: inbd, Outbound: outbd}, nil
}

// Accept starts a listener bound to addr and returns a ServerHandle whose
// Accept queue yields one *Handle per inbound connection (§4.2, §4.3, §6).
func Accept(r *Reactor, network, addr string, opts ...Option) (*ServerHandle, error) {
	cfg := buildConfig(opts)
	// A single queue object cannot be shared across every accepted
	// connection; WithInboundQueue/WithOutboundQueue only make sense for
	// Connect's single endpoint. Accept honors WithQueueFactories instead,
	// falling back to a fresh queue pair per accepted connection, sized by
	// InboundCapacity/OutboundCapacity (unbounded by default).
	cfg.inboundQueue = nil
	cfg.outboundQueue = nil

	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}

	l := &listener{
		reactor:  r,
		ln:       ln,
		cfg:      cfg,
		accepted: NewBoundedQueue[*Handle](cfg.AcceptCapacity),
		done:     make(chan struct{}),
	}
	r.trackListener(l)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.untrackListener(l)
		l.acceptLoop()
	}()

	return &ServerHandle{Accept: l.accepted, Addr: ln.Addr()}, nil
}

// Shutdown closes every listener and requests every endpoint close, then
// waits for all of their goroutines to finish (§6: "shutdown completeness").
// It is safe to call more than once.
func (r *Reactor) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	listeners := make([]*listener, 0, len(r.listeners))
	for l := range r.listeners {
		listeners = append(listeners, l)
	}
	endpoints := make([]*endpoint, 0, len(r.endpoints))
	for e := range r.endpoints {
		endpoints = append(endpoints, e)
	}
	r.mu.Unlock()

	for _, l := range listeners {
		l.close()
	}
	for _, e := range endpoints {
		e.requestClose()
	}
	r.wg.Wait()
}

// listener owns one bound socket and posts an accepted *Handle for every
// inbound connection. acceptLoop does not call Accept() again until the
// just-accepted handle has been posted, so no second accept starts during
// the hand-off; the listener keeps no explicit accepting/not-accepting
// state field (§4.3).
type listener struct {
	reactor *Reactor
	ln      net.Listener
	cfg     Config

	accepted *Queue[*Handle]

	closeOnce sync.Once
	done      chan struct{}
}

func (l *listener) close() {
	l.closeOnce.Do(func() {
		l.ln.Close()
		close(l.done)
	})
	l.accepted.Close()
}

func (l *listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			l.reactor.log.Debug("accept failed", zap.Error(err))
			return
		}

		inbd, outbd := l.cfg.resolveQueues()
		e := newEndpoint(newEndpointID(), l.reactor.log, l.cfg, inbd, outbd, nil, true)
		l.reactor.track(e)

		h := &Handle{Inbound: inbd, Outbound: outbd}

		l.reactor.wg.Add(1)
		go func() {
			defer l.reactor.wg.Done()
			defer l.reactor.untrack(e)
			e.manageAccepted(conn)
		}()

		// Closing the accept queue from the caller side only discards
		// further handles (§6); it must never stop this loop from
		// continuing to accept.
		if !l.accepted.PushBlocking(h) {
			l.reactor.log.Debug("accept queue closed, discarding accepted handle")
		}
	}
}
