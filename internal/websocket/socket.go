package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/luciancaetano/tickbridge"
)

// Socket is the capability a native driver needs from a WebSocket library.
//
// One goroutine calls ReadMessage while another calls WriteMessage; implementations must
// support exactly that much concurrency. Close must unblock a pending ReadMessage.
type Socket interface {
	// ReadMessage blocks until a text or binary frame arrives.
	//
	// Returns an error wrapping io.EOF when the peer closed the connection, and any other
	// error on failure.
	ReadMessage(ctx context.Context) (tickbridge.Message, error)

	// WriteMessage writes one frame. KindText goes out as a text frame, every other kind as
	// binary.
	WriteMessage(ctx context.Context, msg tickbridge.Message) error

	// Close releases the connection.
	Close() error
}

// Dialer performs the WebSocket handshake.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string, header http.Header) (Socket, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	return f(ctx, url, header)
}

// Engines
const (
	EngineGorilla = "gorilla"
	EngineCoder   = "coder"
)

// Config holds the settings of a connection driver.
type Config struct {
	// Engine picks the native WebSocket library: EngineGorilla (default) or EngineCoder.
	// Ignored when compiled for js/wasm.
	Engine string `mapstructure:"engine"`
	// HandshakeTimeout bounds the dial
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	// WriteTimeout bounds each frame write
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ReadLimit is the largest inbound frame accepted, in bytes
	ReadLimit int64 `mapstructure:"read_limit"`
	// Header is sent with the handshake request. Ignored by browsers.
	Header http.Header `mapstructure:"-"`
	// Dialer overrides Engine when set
	Dialer Dialer `mapstructure:"-"`
}

// DefaultConfig returns the default driver configuration
func DefaultConfig() *Config {
	return &Config{
		Engine:           EngineGorilla,
		HandshakeTimeout: tickbridge.DefaultHandshakeTimeout,
		WriteTimeout:     tickbridge.DefaultWriteTimeout,
		ReadLimit:        tickbridge.DefaultReadLimit,
	}
}

// withDefaults fills zero fields from DefaultConfig without touching cfg.
func (cfg *Config) withDefaults() *Config {
	def := DefaultConfig()
	if cfg == nil {
		return def
	}
	out := *cfg
	if out.Engine == "" {
		out.Engine = def.Engine
	}
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = def.WriteTimeout
	}
	if out.ReadLimit <= 0 {
		out.ReadLimit = def.ReadLimit
	}
	return &out
}
