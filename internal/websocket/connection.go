package websocket

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/tickbridge"
	"github.com/luciancaetano/tickbridge/internal/diag"
	"github.com/luciancaetano/tickbridge/internal/metrics"
	"github.com/luciancaetano/tickbridge/internal/queue"
)

// Connection implements the tickbridge.Connection interface
type Connection struct {
	id      string
	url     string
	ends    queue.ConsumerEnd[tickbridge.Message]
	ctx     context.Context
	cancel  context.CancelFunc
	state   atomic.Int32
	reason  atomic.Pointer[tickbridge.CloseReason]
	once    sync.Once
	metrics *metrics.Collector
}

var _ tickbridge.Connection = (*Connection)(nil)

// Connect creates a connection handle and starts its driver. It never blocks.
//
// Failures are not returned: a connection that cannot be established reports
// tickbridge.ErrClosed from Recv and records ReasonHandshakeFailed. Cancelling ctx stops the
// driver. A nil reporter or collector disables diagnostics or metrics.
func Connect(ctx context.Context, url string, initial *tickbridge.Message, cfg *Config, rep *diag.Reporter, m *metrics.Collector) *Connection {
	return connect(ctx, url, initial, cfg, rep, m, defaultDriver())
}

func connect(ctx context.Context, url string, initial *tickbridge.Message, cfg *Config, rep *diag.Reporter, m *metrics.Collector, d driver) *Connection {
	if rep == nil {
		rep = diag.Nop()
	}

	consumer, driverEnd := queue.NewPair[tickbridge.Message]()
	lifeCtx, cancel := context.WithCancel(context.Background())

	c := &Connection{
		id:      uuid.New().String(),
		url:     url,
		ends:    consumer,
		ctx:     lifeCtx,
		cancel:  cancel,
		metrics: m,
	}
	c.state.Store(int32(tickbridge.StateConnecting))

	s := &session{
		conn: c,
		url:  url,
		end:  driverEnd,
		cfg:  cfg.withDefaults(),
		diag: rep.With(func(zc zerolog.Context) zerolog.Context {
			return zc.Str("conn_id", c.id).Str("url", url)
		}),
		metrics: m,
	}
	if initial != nil {
		msg := *initial
		s.initial = &msg
	}

	go d.run(ctx, s)

	return c
}

// ID returns a unique identifier for the connection
func (c *Connection) ID() string {
	return c.id
}

// URL returns the dialled WebSocket URL
func (c *Connection) URL() string {
	return c.url
}

// Send queues a copy of msg for the driver
func (c *Connection) Send(msg tickbridge.Message) bool {
	msg.Data = bytes.Clone(msg.Data)
	if c.ends.Out.TrySend(msg) {
		return true
	}
	c.metrics.SendRejected()
	return false
}

// Recv returns the oldest inbound message
func (c *Connection) Recv() (tickbridge.Message, error) {
	msg, err := c.ends.In.TryRecv()
	if err != nil {
		return tickbridge.Message{}, recvError(err)
	}
	return msg, nil
}

// Drain returns up to max buffered messages
func (c *Connection) Drain(max int) []tickbridge.Message {
	var out []tickbridge.Message
	for max <= 0 || len(out) < max {
		msg, err := c.Recv()
		if err != nil {
			break
		}
		out = append(out, msg)
	}
	return out
}

// State returns the driver state
func (c *Connection) State() tickbridge.State {
	return tickbridge.State(c.state.Load())
}

// CloseReason returns why the driver closed
func (c *Connection) CloseReason() tickbridge.CloseReason {
	if r := c.reason.Load(); r != nil {
		return *r
	}
	return tickbridge.ReasonNone
}

// Context returns the driver lifecycle context
func (c *Connection) Context() context.Context {
	return c.ctx
}

// Done returns a channel closed once the driver has terminated
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close drops the handle
func (c *Connection) Close() {
	c.ends.Close()
}

// recvError converts queue errors to the two-valued receive signal.
func recvError(err error) error {
	if errors.Is(err, queue.ErrEmpty) {
		return tickbridge.ErrEmpty
	}
	return tickbridge.ErrClosed
}

// session is the driver-side state of one connection.
type session struct {
	conn    *Connection
	url     string
	initial *tickbridge.Message
	end     queue.DriverEnd[tickbridge.Message]
	cfg     *Config
	diag    *diag.Reporter
	metrics *metrics.Collector
	wasOpen bool
}

// driver runs the I/O of one session until it reaches the closed state. Implementations are
// chosen at build time by defaultDriver.
type driver interface {
	run(ctx context.Context, s *session)
}

// open moves the session to StateOpen.
func (s *session) open() {
	s.wasOpen = true
	s.conn.state.Store(int32(tickbridge.StateOpen))
	s.metrics.ConnectionOpened()
	s.diag.Debug().Msg("websocket open")
}

// dropped reports whether the consumer has closed its handle.
func (s *session) dropped() bool {
	select {
	case <-s.end.Out.Done():
		return true
	default:
		return false
	}
}

// deliver forwards an inbound frame to the consumer. Frames are dropped once the consumer has
// closed its handle.
func (s *session) deliver(msg tickbridge.Message) {
	s.metrics.MessageReceived(msg.Kind.String())
	s.end.In.TrySend(msg)
}

// sent records a frame written to the socket.
func (s *session) sent(msg tickbridge.Message) {
	s.metrics.MessageSent(msg.Kind.String())
}

// finish moves the session to StateClosed. It must be called exactly once, after the driver
// has stopped touching the socket.
func (s *session) finish(reason tickbridge.CloseReason, err error) {
	s.conn.once.Do(func() {
		s.conn.reason.Store(&reason)
		s.conn.state.Store(int32(tickbridge.StateClosed))
		s.end.Close()
		s.metrics.ConnectionClosed(string(reason), s.wasOpen)

		switch {
		case err != nil && reason != tickbridge.ReasonConsumerClosed && reason != tickbridge.ReasonCancelled:
			s.diag.Error().Err(err).Str("reason", string(reason)).Msg("websocket closed")
		default:
			s.diag.Debug().Str("reason", string(reason)).Msg("websocket closed")
		}

		s.conn.cancel()
	})
}
