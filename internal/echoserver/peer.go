package echoserver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingPeriod   = 54 * time.Second
	sendBuffer   = 256
	maxRPCBody   = 10 * 1024 * 1024
)

type outbound struct {
	typ  int
	data []byte
}

// Peer is one WebSocket connection accepted by the server
type Peer struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	ctx         context.Context
	cancel      context.CancelFunc
	sendCh      chan outbound
	pumpDone    chan struct{}
	mu          sync.RWMutex
	closed      bool
	rateLimiter *rate.Limiter // Rate limiter for incoming messages
}

// newPeer wraps an upgraded connection and starts its write pump
func newPeer(conn *websocket.Conn, remoteAddr string, rateLimitConfig *RateLimitConfig) *Peer {
	ctx, cancel := context.WithCancel(context.Background())

	var limiter *rate.Limiter
	if rateLimitConfig != nil && rateLimitConfig.Enabled {
		limiter = rate.NewLimiter(rateLimitConfig.MessagesPerSecond, rateLimitConfig.Burst)
	}

	p := &Peer{
		id:          uuid.New().String(),
		conn:        conn,
		remoteAddr:  remoteAddr,
		ctx:         ctx,
		cancel:      cancel,
		sendCh:      make(chan outbound, sendBuffer),
		pumpDone:    make(chan struct{}),
		rateLimiter: limiter,
	}

	go p.writePump()

	return p
}

// ID returns a unique identifier for the peer
func (p *Peer) ID() string {
	return p.id
}

// RemoteAddr returns the peer's remote network address
func (p *Peer) RemoteAddr() string {
	return p.remoteAddr
}

// Context returns the peer's lifecycle context
func (p *Peer) Context() context.Context {
	return p.ctx
}

// SendText queues a text frame for the peer
func (p *Peer) SendText(s string) bool {
	return p.send(outbound{typ: websocket.TextMessage, data: []byte(s)})
}

// SendBinary queues a binary frame for the peer
func (p *Peer) SendBinary(b []byte) bool {
	return p.send(outbound{typ: websocket.BinaryMessage, data: b})
}

func (p *Peer) send(msg outbound) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	// The lock is held while sending so Close cannot close sendCh underneath. A full sendCh
	// with no write pump left to drain it fails instead of blocking Close forever.
	select {
	case p.sendCh <- msg:
		return true
	case <-p.pumpDone:
		return false
	case <-p.ctx.Done():
		return false
	}
}

// Close closes the peer connection with a normal closure
func (p *Peer) Close() error {
	return p.CloseWithCode(websocket.CloseNormalClosure, "")
}

// CloseWithCode closes the connection with a close code and optional reason
func (p *Peer) CloseWithCode(code int, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	// The close frame goes out before the write pump is cancelled and drops the conn.
	message := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	p.conn.WriteControl(websocket.CloseMessage, message, deadline)

	p.cancel()
	close(p.sendCh)
	return p.conn.Close()
}

// IsAlive returns true if the connection is still active
func (p *Peer) IsAlive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

// allow reports whether the peer is within its rate limit
func (p *Peer) allow() bool {
	if p.rateLimiter == nil {
		return true
	}
	return p.rateLimiter.Allow()
}

// writePump pumps messages from the send channel to the websocket connection
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
		close(p.pumpDone)
	}()

	for {
		select {
		case msg, ok := <-p.sendCh:
			if !ok {
				return
			}

			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteMessage(msg.typ, msg.data); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-p.ctx.Done():
			return
		}
	}
}
