// Package tickbridge provides a non-blocking, poll-based WebSocket client for frame-stepped hosts
// such as game loops.
//
// A host that cannot await I/O calls Connect once, then polls Recv and calls Send from its tick.
// All socket work runs on background goroutines (or on the browser event loop when compiled for
// js/wasm); the tick never blocks.
//
// # Quick Start
//
//	import (
//	    "github.com/luciancaetano/tickbridge"
//	    "github.com/luciancaetano/tickbridge/ws"
//	)
//
//	conn := ws.Connect(ctx, "ws://localhost:8080/ws", nil)
//	defer conn.Close()
//
//	// every tick
//	conn.Send(tickbridge.TextMessage("hello"))
//	for {
//	    msg, err := conn.Recv()
//	    if errors.Is(err, tickbridge.ErrEmpty) {
//	        break // nothing more this tick
//	    }
//	    if errors.Is(err, tickbridge.ErrClosed) {
//	        // reconnect is up to the host
//	        break
//	    }
//	    handle(msg)
//	}
//
// # Receive Contract
//
// Every non-blocking receive returns one of:
//
//   - a value
//   - ErrEmpty: nothing available yet, try again next tick
//   - ErrClosed: nothing will ever arrive again
//
// Handshake failures, socket errors and remote closes are never raised through Send or Recv.
// They surface as ErrClosed on the next Recv once buffered messages have been drained, and as a
// rate-limited diagnostic on the configured zerolog logger.
//
// # JSON-RPC over HTTP
//
// Request fires a single JSON-RPC 2.0 POST in the background and returns a handle that yields
// exactly one Response: either the "result" value or the "error" value of the reply. Transport
// failures are folded into Response.Error as a JSON string.
//
//	req := ws.Request(ctx, "http://localhost:8080/rpc", "sum", 7, json.RawMessage(`[1,2]`))
//	// every tick
//	if resp, err := req.Recv(); err == nil {
//	    use(resp.Result)
//	}
//
// # Important
//
//   - Queues are unbounded: a host that stops polling grows memory without limit
//   - Close the connection handle to stop its driver; there is no reconnect or backoff
//   - Ordering holds per direction of one connection, never across connections
package tickbridge
