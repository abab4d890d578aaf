package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/tickbridge"
	"github.com/luciancaetano/tickbridge/internal/diag"
	"github.com/luciancaetano/tickbridge/internal/rpc"
	"github.com/luciancaetano/tickbridge/internal/websocket"
)

type SocketConfig = websocket.Config
type RequestConfig = rpc.Config
type DiagnosticsConfig = diag.Config

type Socket = websocket.Socket
type Dialer = websocket.Dialer
type DialerFunc = websocket.DialerFunc
type Poster = rpc.Poster
type PosterFunc = rpc.PosterFunc

// Field is an extra top-level member of a JSON-RPC request envelope.
type Field = rpc.Field

// Native WebSocket engines
const (
	EngineGorilla = websocket.EngineGorilla
	EngineCoder   = websocket.EngineCoder
)

// Config bundles the settings of a Client. It can be decoded from a config file through its
// mapstructure tags.
type Config struct {
	WebSocket   *SocketConfig      `mapstructure:"websocket"`
	Request     *RequestConfig     `mapstructure:"request"`
	Diagnostics *DiagnosticsConfig `mapstructure:"diagnostics"`

	// Logger receives diagnostics. The zero value discards them.
	Logger zerolog.Logger `mapstructure:"-"`
	// Registerer, when set, receives the client's Prometheus collectors.
	Registerer prometheus.Registerer `mapstructure:"-"`
}

// DefaultConfig returns the default client configuration
func DefaultConfig() *Config {
	return &Config{
		WebSocket:   websocket.DefaultConfig(),
		Request:     rpc.DefaultConfig(),
		Diagnostics: diag.DefaultConfig(),
		Logger:      zerolog.Nop(),
	}
}

// Option changes a Config
type Option func(*Config)

// WithEngine selects the native WebSocket engine
func WithEngine(engine string) Option {
	return func(c *Config) {
		c.WebSocket.Engine = engine
	}
}

// WithDialer replaces the socket engine
func WithDialer(d Dialer) Option {
	return func(c *Config) {
		c.WebSocket.Dialer = d
	}
}

// WithHeader sets the handshake request header
func WithHeader(h http.Header) Option {
	return func(c *Config) {
		c.WebSocket.Header = h
	}
}

// WithHandshakeTimeout bounds the dial
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WebSocket.HandshakeTimeout = d
	}
}

// WithRequestTimeout bounds each JSON-RPC call
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Request.Timeout = d
	}
}

// WithPoster replaces the HTTP transport of JSON-RPC calls
func WithPoster(p Poster) Option {
	return func(c *Config) {
		c.Request.Poster = p
	}
}

// WithLogger sets the diagnostics logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// normalize fills nil sections with their defaults.
func (c *Config) normalize() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.WebSocket == nil {
		out.WebSocket = def.WebSocket
	}
	if out.Request == nil {
		out.Request = def.Request
	}
	if out.Diagnostics == nil {
		out.Diagnostics = def.Diagnostics
	}
	return &out
}

func buildConfig(opts []Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// DecodeConfig builds a Config from a generic settings map, for hosts that keep their own
// configuration tree. Keys follow the mapstructure tags; durations may be given as strings such
// as "5s". Missing keys keep their defaults.
//
// Example:
//
//	cfg, err := ws.DecodeConfig(map[string]any{
//	    "websocket": map[string]any{"engine": "coder", "handshake_timeout": "3s"},
//	    "request":   map[string]any{"timeout": "10s"},
//	})
func DecodeConfig(raw map[string]any) (*Config, error) {
	cfg := DefaultConfig()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		Result:      cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tickbridge.ErrDecodeConfig, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", tickbridge.ErrDecodeConfig, err)
	}
	return cfg, nil
}
