// Package ws is the entry point of tickbridge: it opens polled WebSocket connections and issues
// one-shot JSON-RPC calls over HTTP.
package ws

import (
	"context"
	"sync"

	"github.com/luciancaetano/tickbridge"
	"github.com/luciancaetano/tickbridge/internal/diag"
	"github.com/luciancaetano/tickbridge/internal/metrics"
	"github.com/luciancaetano/tickbridge/internal/rpc"
	"github.com/luciancaetano/tickbridge/internal/websocket"
)

// Client shares configuration, diagnostics, metrics and the JSON-RPC id sequence between
// connections and calls. It is safe for concurrent use.
type Client struct {
	cfg     *Config
	diag    *diag.Reporter
	metrics *metrics.Collector
	bridge  *rpc.Bridge
}

// NewClient creates a client. A nil cfg uses DefaultConfig. It fails only when the metrics
// cannot be registered.
//
// Example:
//
//	client, err := ws.NewClient(&ws.Config{Logger: logger, Registerer: prometheus.DefaultRegisterer})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	conn := client.Connect(ctx, "ws://localhost:8080/ws", nil)
func NewClient(cfg *Config) (*Client, error) {
	cfg = cfg.normalize()

	m, err := metrics.New(cfg.Registerer)
	if err != nil {
		return nil, err
	}

	rep := diag.New(cfg.Logger, cfg.Diagnostics)
	return &Client{
		cfg:     cfg,
		diag:    rep,
		metrics: m,
		bridge:  rpc.NewBridge(cfg.Request, rep, m),
	}, nil
}

// Connect opens a connection to url and returns its handle at once.
//
// initial, when not nil, is written right after the handshake. Failures never surface here: they
// show up as tickbridge.ErrClosed from Recv together with a CloseReason.
func (c *Client) Connect(ctx context.Context, url string, initial *tickbridge.Message) tickbridge.Connection {
	return websocket.Connect(ctx, url, initial, c.cfg.WebSocket, c.diag, c.metrics)
}

// Request posts a JSON-RPC 2.0 call to url and returns its handle at once.
//
// params is encoded as the "params" member. extra fields are merged into the envelope in order
// and may replace any base member.
func (c *Client) Request(ctx context.Context, url, method string, gid uint64, params any, extra ...Field) tickbridge.Request {
	return c.bridge.Request(ctx, url, method, gid, params, extra...)
}

var (
	defaultOnce   sync.Once
	defaultClient *Client
)

// Default returns the process-wide client used by Connect and Request without options.
func Default() *Client {
	defaultOnce.Do(func() {
		// Without a Registerer, metrics registration cannot fail.
		defaultClient, _ = NewClient(nil)
	})
	return defaultClient
}

// Connect opens a connection with the default client, or with a one-off client built from opts.
//
// Example:
//
//	conn := ws.Connect(ctx, "ws://localhost:8080/ws", nil, ws.WithEngine(ws.EngineCoder))
//	defer conn.Close()
//	for range ticker.C {
//	    for _, msg := range conn.Drain(64) {
//	        handle(msg)
//	    }
//	}
func Connect(ctx context.Context, url string, initial *tickbridge.Message, opts ...Option) tickbridge.Connection {
	return clientFor(opts).Connect(ctx, url, initial)
}

// Request posts a JSON-RPC call with the default client.
//
// Example:
//
//	req := ws.Request(ctx, "http://localhost:8080/rpc", "sum", 1, []int{1, 2}, ws.F("token", tok))
//	// each tick:
//	if resp, err := req.Recv(); err == nil {
//	    handle(resp)
//	}
func Request(ctx context.Context, url, method string, gid uint64, params any, extra ...Field) tickbridge.Request {
	return Default().Request(ctx, url, method, gid, params, extra...)
}

// F builds an extra envelope Field.
func F(key string, value any) Field {
	return rpc.F(key, value)
}

func clientFor(opts []Option) *Client {
	if len(opts) == 0 {
		return Default()
	}
	// Options cannot set a Registerer, so NewClient cannot fail here.
	c, _ := NewClient(buildConfig(opts))
	return c
}
