package qnet

import "time"

const (
	// DefaultReconnectPeriod is the delay between a client losing its socket
	// and the next connect attempt (§4.5).
	DefaultReconnectPeriod = 1000 * time.Millisecond

	// DefaultHeartbeatPeriod is the idle-write interval that triggers a
	// heartbeat frame (§4.5).
	DefaultHeartbeatPeriod = 5000 * time.Millisecond

	// defaultHeartbeatTimeoutFactor gives the default heartbeat timeout as a
	// multiple of the heartbeat period (§4.5: "4x heartbeat_period").
	defaultHeartbeatTimeoutFactor = 4
)

// Config is the typed configuration record for one endpoint, replacing the
// open option-map idiom the original spec describes (§9 design notes:
// "Dynamic per-endpoint option bag. Replace the open map of options with a
// typed configuration record").
type Config struct {
	// ReconnectPeriod is the delay between disconnect and the next connect
	// attempt. Client endpoints only; ignored on accepted endpoints, which
	// never reconnect (see DESIGN.md's Open Question resolution #1).
	ReconnectPeriod time.Duration

	// HeartbeatPeriod is how long the outbound side may sit idle before a
	// heartbeat frame is emitted.
	HeartbeatPeriod time.Duration

	// HeartbeatTimeout is how long the inbound side may see no bytes at all
	// before the socket is declared stuck.
	HeartbeatTimeout time.Duration

	// MaxFrameSize is the protocol-error ceiling on a declared frame length
	// (§4.1, §7).
	MaxFrameSize int

	// InboundCapacity bounds the inbound Event queue (0 = unbounded). Only
	// used when no explicit queue is supplied via WithInboundQueue.
	InboundCapacity int

	// OutboundCapacity bounds the outbound payload queue (0 = unbounded).
	// Only used when no explicit queue is supplied via WithOutboundQueue.
	OutboundCapacity int

	// AcceptCapacity bounds a listener's accept queue (0 = unbounded).
	AcceptCapacity int

	inboundQueue  *Queue[Event]
	outboundQueue *Queue[[]byte]

	inboundFactory  func() *Queue[Event]
	outboundFactory func() *Queue[[]byte]
}

// defaultConfig returns the Config spec.md §4.5's option table describes as
// defaults.
func defaultConfig() Config {
	period := DefaultHeartbeatPeriod
	return Config{
		ReconnectPeriod:  DefaultReconnectPeriod,
		HeartbeatPeriod:  period,
		HeartbeatTimeout: defaultHeartbeatTimeoutFactor * period,
		MaxFrameSize:     DefaultMaxFrameSize,
	}
}

// Option configures a Config. Connect and Accept both take ...Option.
type Option func(*Config)

// WithReconnectPeriod overrides the client reconnect delay.
func WithReconnectPeriod(d time.Duration) Option {
	return func(c *Config) { c.ReconnectPeriod = d }
}

// WithHeartbeatPeriod overrides the outbound idle-heartbeat interval. If the
// heartbeat timeout was not also overridden, it is rescaled to stay at the
// default 4x multiple of the new period.
func WithHeartbeatPeriod(d time.Duration) Option {
	return func(c *Config) {
		rescale := c.HeartbeatTimeout == defaultHeartbeatTimeoutFactor*c.HeartbeatPeriod
		c.HeartbeatPeriod = d
		if rescale {
			c.HeartbeatTimeout = defaultHeartbeatTimeoutFactor * d
		}
	}
}

// WithHeartbeatTimeout overrides the stall-detection window.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(c *Config) { c.HeartbeatTimeout = d }
}

// WithMaxFrameSize overrides the protocol-error ceiling on frame length.
func WithMaxFrameSize(n int) Option {
	return func(c *Config) { c.MaxFrameSize = n }
}

// WithInboundQueue supplies a caller-constructed inbound queue (any
// buffering policy), matching spec.md §4.5's inbound_queue option.
func WithInboundQueue(q *Queue[Event]) Option {
	return func(c *Config) { c.inboundQueue = q }
}

// WithOutboundQueue supplies a caller-constructed outbound queue, matching
// spec.md §4.5's outbound_queue option.
func WithOutboundQueue(q *Queue[[]byte]) Option {
	return func(c *Config) { c.outboundQueue = q }
}

// WithInboundCapacity bounds the default inbound queue's capacity; ignored
// if WithInboundQueue supplied a queue explicitly.
func WithInboundCapacity(n int) Option {
	return func(c *Config) { c.InboundCapacity = n }
}

// WithOutboundCapacity bounds the default outbound queue's capacity; ignored
// if WithOutboundQueue supplied a queue explicitly.
func WithOutboundCapacity(n int) Option {
	return func(c *Config) { c.OutboundCapacity = n }
}

// WithAcceptCapacity bounds a listener's accept queue capacity.
func WithAcceptCapacity(n int) Option {
	return func(c *Config) { c.AcceptCapacity = n }
}

// WithQueueFactories lets a listener construct a fresh inbound/outbound
// queue per accepted endpoint instead of reusing one shared pair, matching
// spec.md §4.5's inbound_queue_factory/outbound_queue_factory options.
func WithQueueFactories(inbound func() *Queue[Event], outbound func() *Queue[[]byte]) Option {
	return func(c *Config) {
		c.inboundFactory = inbound
		c.outboundFactory = outbound
	}
}

func (c *Config) resolveQueues() (*Queue[Event], *Queue[[]byte]) {
	in := c.inboundQueue
	if in == nil {
		if c.inboundFactory != nil {
			in = c.inboundFactory()
		} else {
			in = NewBoundedQueue[Event](c.InboundCapacity)
		}
	}
	out := c.outboundQueue
	if out == nil {
		if c.outboundFactory != nil {
			out = c.outboundFactory()
		} else {
			out = NewBoundedQueue[[]byte](c.OutboundCapacity)
		}
	}
	return in, out
}

func buildConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
