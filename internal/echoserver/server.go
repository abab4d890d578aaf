// Package echoserver is a development server for the bridge: it echoes WebSocket frames and
// answers JSON-RPC 2.0 calls posted over HTTP.
package echoserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/tickbridge"
)

// CheckOriginFn is a function that validates the origin of a WebSocket connection request.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called after the WebSocket handshake completes and before the echo loop
// starts. It runs synchronously during connection setup.
type OnConnectFn = func(p *Peer)

// OnDisconnectFn is called when a peer disconnects. voluntary is true when the peer closed the
// connection itself.
type OnDisconnectFn = func(p *Peer, voluntary bool)

// MethodFn handles one JSON-RPC method. A returned *RPCError is sent as is; any other error
// becomes an internal error.
type MethodFn = func(ctx context.Context, params json.RawMessage) (any, error)

// Config holds the server settings.
type Config struct {
	Addr            string           `mapstructure:"addr"`
	RateLimitConfig *RateLimitConfig `mapstructure:"rate_limit"`
	CheckOrigin     CheckOriginFn    `mapstructure:"-"`
	OnConnect       OnConnectFn      `mapstructure:"-"`
	OnDisconnect    OnDisconnectFn   `mapstructure:"-"`
	// Gatherer, when set, is served at /metrics
	Gatherer prometheus.Gatherer `mapstructure:"-"`
	Logger   zerolog.Logger      `mapstructure:"-"`
}

// DefaultConfig returns a config listening on :8080 with the default rate limit and every
// origin allowed.
func DefaultConfig() *Config {
	return &Config{
		Addr:            ":8080",
		RateLimitConfig: DefaultRateLimitConfig(),
		CheckOrigin:     AllOrigins(),
		Logger:          zerolog.Nop(),
	}
}

// AllOrigins returns a checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// RateLimitConfig defines rate limiting configuration for peers
type RateLimitConfig struct {
	// MessagesPerSecond defines how many messages a peer can send per second
	MessagesPerSecond rate.Limit `mapstructure:"messages_per_second"`
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int `mapstructure:"burst"`
	// Enabled determines if rate limiting is active
	Enabled bool `mapstructure:"enabled"`
}

// DefaultRateLimitConfig returns the default rate limit configuration
// Allows 100 messages per second with burst of 200
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		MessagesPerSecond: 100,
		Burst:             200,
		Enabled:           true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

// Server echoes WebSocket frames at /ws and serves JSON-RPC at /rpc
type Server struct {
	cfg     *Config
	router  chi.Router
	server  *http.Server
	addr    net.Addr
	peers   sync.Map // map[string]*Peer
	methods sync.Map // map[string]MethodFn

	mu       sync.RWMutex
	running  bool
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New creates a server. Nil fields of cfg fall back to DefaultConfig.
func New(cfg *Config) *Server {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	if cfg.RateLimitConfig == nil {
		cfg.RateLimitConfig = def.RateLimitConfig
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = def.CheckOrigin
	}

	s := &Server{
		cfg: cfg,
		log: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}

	r := chi.NewRouter()
	r.Get("/ws", s.handleWebSocket)
	r.Post("/rpc", s.handleRPC)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	s.router = r

	s.RegisterDefaultMethods()
	return s
}

// Handler returns the HTTP handler of the server, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listening address once Start succeeded.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(tickbridge.ErrServerAlreadyRunning)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.running = true
	s.addr = ln.Addr()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("echo server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(stopCtx)
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("echo server listening")
	return nil
}

// Stop closes every peer and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	s.mu.Unlock()

	s.peers.Range(func(key, value any) bool {
		if p, ok := value.(*Peer); ok {
			p.Close()
		}
		return true
	})

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// RegisterMethod registers a JSON-RPC handler for a method name
func (s *Server) RegisterMethod(method string, handler MethodFn) {
	s.methods.Store(method, handler)
}

// Peers returns the number of connected peers
func (s *Server) Peers() int {
	n := 0
	s.peers.Range(func(key, value any) bool {
		n++
		return true
	})
	return n
}

// handleWebSocket upgrades the request and echoes frames back to the peer
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		s.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	p := newPeer(conn, r.RemoteAddr, s.cfg.RateLimitConfig)
	s.peers.Store(p.ID(), p)

	go s.handlePeer(p)
}

// handlePeer reads frames from a peer and queues them back unchanged
func (s *Server) handlePeer(p *Peer) {
	voluntary := false
	defer func() {
		if s.cfg.OnDisconnect != nil {
			s.cfg.OnDisconnect(p, voluntary)
		}
		s.peers.Delete(p.ID())
		p.Close()
	}()

	p.conn.SetReadDeadline(time.Now().Add(readTimeout))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(p)
	}

	for {
		typ, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				voluntary = true
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseAbnormalClosure) {
				s.log.Warn().Err(err).Str("peer_id", p.ID()).Msg("unexpected websocket close")
			}
			return
		}

		p.conn.SetReadDeadline(time.Now().Add(readTimeout))

		if !p.allow() {
			s.log.Warn().Str("peer_id", p.ID()).Str("remote_addr", p.RemoteAddr()).Msg("rate limit exceeded")
			p.CloseWithCode(websocket.ClosePolicyViolation, "Rate limit exceeded")
			return
		}

		if !p.send(outbound{typ: typ, data: data}) {
			return
		}
	}
}

// handleRPC answers one JSON-RPC 2.0 request
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBody))
	if err != nil {
		writeRPC(w, rpcResponse{JSONRPC: tickbridge.JSONRPCVersion, Error: &RPCError{Code: tickbridge.JSONRPCParseError, Message: tickbridge.ErrParseError}})
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPC(w, rpcResponse{JSONRPC: tickbridge.JSONRPCVersion, Error: &RPCError{Code: tickbridge.JSONRPCParseError, Message: tickbridge.ErrParseError}})
		return
	}

	resp := rpcResponse{
		JSONRPC: tickbridge.JSONRPCVersion,
		ID:      req.ID,
		GID:     req.GID,
	}

	if req.JSONRPC != tickbridge.JSONRPCVersion || req.Method == "" {
		resp.Error = &RPCError{Code: tickbridge.JSONRPCInvalidRequest, Message: tickbridge.ErrInvalidRequest}
		writeRPC(w, resp)
		return
	}

	handler, ok := s.methods.Load(req.Method)
	if !ok {
		resp.Error = &RPCError{Code: tickbridge.JSONRPCMethodNotFound, Message: tickbridge.ErrMethodNotFound}
		writeRPC(w, resp)
		return
	}

	handlerFunc, ok := handler.(MethodFn)
	if !ok {
		resp.Error = &RPCError{Code: tickbridge.JSONRPCInternalError, Message: tickbridge.ErrInternalError}
		writeRPC(w, resp)
		return
	}

	result, err := handlerFunc(r.Context(), req.Params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			resp.Error = rpcErr
		} else {
			resp.Error = &RPCError{Code: tickbridge.JSONRPCInternalError, Message: err.Error()}
		}
		writeRPC(w, resp)
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: tickbridge.JSONRPCInternalError, Message: tickbridge.ErrInternalError}
		writeRPC(w, resp)
		return
	}
	resp.Result = raw
	writeRPC(w, resp)
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// Peer went away mid-write.
		return
	}
}

// rpcRequest represents a JSON-RPC 2.0 request as posted by the bridge
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"`
	GID     any             `json:"gid,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      any             `json:"id"`
	GID     any             `json:"gid,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}
