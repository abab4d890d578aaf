package tickbridge

import "time"

// JSON-RPC envelope
const (
	JSONRPCVersion = "2.0"

	// FieldCorrelationID carries the caller-supplied correlation id of a request.
	FieldCorrelationID = "gid"
)

// Standard error messages
const (
	// Connection errors
	ErrHandshake         = "websocket handshake failed"
	ErrReadMessage       = "failed to read message"
	ErrWriteMessage      = "failed to write message"
	ErrInitialMessage    = "failed to send initial message"
	ErrUnknownEngine     = "unknown websocket engine"
	ErrSocketUnavailable = "websocket not supported in this environment"
	ErrDecodeConfig      = "failed to decode config"

	// Request errors
	ErrEncodeRequest   = "failed to encode request"
	ErrPostRequest     = "failed to post request"
	ErrDecodeResponse  = "failed to decode response"
	ErrInvalidResponse = "Invalid response"

	// Server errors
	ErrServerAlreadyRunning = "server already running"
	ErrMethodNotFound       = "Method not found"
	ErrParseError           = "Parse error"
	ErrInvalidRequest       = "Invalid Request"
	ErrInternalError        = "Internal error"
)

// JSON-RPC 2.0 error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// Defaults
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultReadLimit        = 10 * 1024 * 1024 // 10MB max frame size
	DefaultDrainLimit       = 256
)
