package tickbridge

import (
	"context"
	"encoding/json"
)

// Connection is the handle a host keeps for one WebSocket session.
//
// Send and Recv never block and are safe to call from any goroutine. The handle stays usable
// until Close is called or the driver reaches the Closed state.
//
// Example usage:
//
//	conn := ws.Connect(ctx, "ws://localhost:8080/ws", nil)
//	if !conn.Send(tickbridge.TextMessage("ping")) {
//	    // handle is closed, nothing was queued
//	}
//	msgs := conn.Drain(64)
type Connection interface {
	// ID returns a unique identifier for the connection.
	//
	// The ID is generated by Connect and is used to correlate diagnostics.
	ID() string

	// URL returns the WebSocket URL the connection was dialled with.
	URL() string

	// Send queues a copy of msg for the driver.
	//
	// Returns false when the outbound queue no longer accepts messages, either because Close was
	// called or because the driver has terminated. Messages are written to the socket in the
	// order Send was called.
	Send(msg Message) bool

	// Recv returns the oldest message received from the socket.
	//
	// Returns ErrEmpty when no message is buffered and ErrClosed once the connection has
	// terminated and every buffered message has been returned.
	Recv() (Message, error)

	// Drain calls Recv until it reports ErrEmpty or ErrClosed, returning at most max messages.
	// A max of zero or less means no limit.
	Drain(max int) []Message

	// State returns the current driver state.
	State() State

	// CloseReason returns why the driver closed, or ReasonNone while it is still running.
	CloseReason() CloseReason

	// Context returns the driver lifecycle context.
	//
	// It is cancelled once the driver has released the socket.
	//
	// Example:
	//
	//	go func() {
	//	    <-conn.Context().Done()
	//	    log.Printf("connection %s closed: %s", conn.ID(), conn.CloseReason())
	//	}()
	Context() context.Context

	// Done is shorthand for Context().Done().
	Done() <-chan struct{}

	// Close drops the handle.
	//
	// Further Send calls return false and buffered inbound messages are discarded. The driver
	// flushes already queued outbound messages, then closes the socket. Close is idempotent.
	Close()
}

// Request is the handle of a one-shot JSON-RPC call over HTTP.
type Request interface {
	// Method returns the JSON-RPC method name of the call.
	Method() string

	// GID returns the caller-supplied correlation id.
	GID() uint64

	// Recv returns the single Response of the call.
	//
	// Returns ErrEmpty until the response has arrived. After the response was returned once,
	// Recv reports ErrClosed; Delivered tells that case apart from a call that ended before
	// producing anything.
	Recv() (Response, error)

	// Delivered reports whether Recv has already returned the response.
	Delivered() bool
}

// Response is the outcome of a JSON-RPC call.
//
// Exactly one of Result and Error is set. Error carries either the "error" member of the reply
// or, for transport failures, a JSON string describing the failure.
type Response struct {
	Result json.RawMessage
	Error  json.RawMessage
}

// IsError reports whether the call failed.
func (r Response) IsError() bool {
	return r.Error != nil
}

// State is the lifecycle state of a connection driver.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason tells why a driver reached StateClosed.
type CloseReason string

const (
	ReasonNone            CloseReason = ""
	ReasonHandshakeFailed CloseReason = "handshake failed"
	ReasonRemoteClosed    CloseReason = "remote closed"
	ReasonReadFailed      CloseReason = "read failed"
	ReasonWriteFailed     CloseReason = "write failed"
	ReasonConsumerClosed  CloseReason = "consumer closed"
	ReasonCancelled       CloseReason = "cancelled"
)
