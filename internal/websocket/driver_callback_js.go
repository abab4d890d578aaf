//go:build js && wasm

package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall/js"
	"time"

	"github.com/luciancaetano/tickbridge"
	"github.com/luciancaetano/tickbridge/internal/queue"
)

var (
	_WebSocket   = js.Global().Get("WebSocket")
	_ArrayBuffer = js.Global().Get("ArrayBuffer")
	_Uint8Array  = js.Global().Get("Uint8Array")
)

// closeEventWait bounds how long listeners stay registered after we call close() ourselves.
const closeEventWait = 5 * time.Second

func defaultDriver() driver {
	return callbackDriver{}
}

// callbackDriver binds a session to a browser WebSocket object. Inbound frames arrive through
// event listeners running on the browser event loop; a goroutine drains the outbound queue and
// calls send.
type callbackDriver struct{}

type browserSocket struct {
	ws     js.Value
	funcs  []js.Func
	opened chan struct{}
	closed chan struct{}

	openOnce  sync.Once
	closeOnce sync.Once
}

func (callbackDriver) run(ctx context.Context, s *session) {
	if _WebSocket.IsUndefined() {
		s.finish(tickbridge.ReasonHandshakeFailed, errors.New(tickbridge.ErrSocketUnavailable))
		return
	}

	var ws js.Value
	if err := jsCall(func() { ws = _WebSocket.New(s.url) }); err != nil {
		s.finish(tickbridge.ReasonHandshakeFailed, fmt.Errorf("%s: %w", tickbridge.ErrHandshake, err))
		return
	}
	ws.Set("binaryType", "arraybuffer")

	sock := &browserSocket{
		ws:     ws,
		opened: make(chan struct{}),
		closed: make(chan struct{}),
	}

	onOpen := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		sock.openOnce.Do(func() {
			defer close(sock.opened)
			if s.dropped() {
				return
			}
			s.open()
			if s.initial != nil {
				if err := sock.send(*s.initial); err != nil {
					s.diag.Warn().Err(err).Msg(tickbridge.ErrInitialMessage)
				} else {
					s.sent(*s.initial)
				}
			}
		})
		return nil
	})

	onMessage := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		data := args[0].Get("data")
		if data.Type() == js.TypeString {
			s.deliver(tickbridge.Message{Kind: tickbridge.KindText, Data: []byte(data.String())})
		} else if data.InstanceOf(_ArrayBuffer) {
			array := _Uint8Array.New(data)
			buf := make([]byte, array.Get("byteLength").Int())
			js.CopyBytesToGo(buf, array)
			s.deliver(tickbridge.Message{Kind: tickbridge.KindBinary, Data: buf})
		}
		return nil
	})

	onError := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		s.diag.Warn().Str("event", "error").Msg("websocket error event")
		return nil
	})

	onClose := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		sock.closeOnce.Do(func() { close(sock.closed) })
		return nil
	})

	sock.funcs = append(sock.funcs, onOpen, onMessage, onError, onClose)
	ws.Call("addEventListener", "open", onOpen)
	ws.Call("addEventListener", "message", onMessage)
	ws.Call("addEventListener", "error", onError)
	ws.Call("addEventListener", "close", onClose)

	go sock.sendLoop(ctx, s)
}

// sendLoop waits for the socket to open, then forwards outbound messages until the queue
// disconnects, send fails, the socket closes or ctx is done. It is the only place that
// finishes the session.
func (sock *browserSocket) sendLoop(ctx context.Context, s *session) {
	select {
	case <-sock.opened:
	case <-sock.closed:
		sock.release()
		s.finish(tickbridge.ReasonHandshakeFailed, errors.New(tickbridge.ErrHandshake))
		return
	case <-ctx.Done():
		sock.shutdown()
		s.finish(tickbridge.ReasonCancelled, ctx.Err())
		return
	case <-s.end.Out.Done():
	}

	// A handle dropped before the socket opened gets no writes, queued or initial.
	if s.dropped() && !s.wasOpen {
		sock.shutdown()
		s.finish(tickbridge.ReasonConsumerClosed, nil)
		return
	}

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sock.closed:
			cancel()
		case <-sendCtx.Done():
		}
	}()

	for {
		msg, err := s.end.Out.Recv(sendCtx)
		if err != nil {
			switch {
			case errors.Is(err, queue.ErrDisconnected):
				sock.shutdown()
				s.finish(tickbridge.ReasonConsumerClosed, nil)
			case ctx.Err() != nil:
				sock.shutdown()
				s.finish(tickbridge.ReasonCancelled, ctx.Err())
			default:
				sock.release()
				s.finish(tickbridge.ReasonRemoteClosed, nil)
			}
			return
		}

		if err := sock.send(msg); err != nil {
			sock.shutdown()
			s.finish(tickbridge.ReasonWriteFailed, fmt.Errorf("%s: %w", tickbridge.ErrWriteMessage, err))
			return
		}
		s.sent(msg)
	}
}

// send issues a synchronous send call. Exceptions thrown by the browser become errors.
func (sock *browserSocket) send(msg tickbridge.Message) error {
	return jsCall(func() {
		if msg.IsText() {
			sock.ws.Call("send", string(msg.Data))
			return
		}
		buffer := _ArrayBuffer.New(len(msg.Data))
		array := _Uint8Array.New(buffer)
		js.CopyBytesToJS(array, msg.Data)
		sock.ws.Call("send", buffer)
	})
}

// shutdown closes the socket and releases the listeners once the close event fired, so no
// event reaches a released function.
func (sock *browserSocket) shutdown() {
	_ = jsCall(func() { sock.ws.Call("close") })
	select {
	case <-sock.closed:
	case <-time.After(closeEventWait):
	}
	sock.release()
}

func (sock *browserSocket) release() {
	for _, f := range sock.funcs {
		f.Release()
	}
	sock.funcs = nil
}

// jsCall runs fn, turning a thrown JavaScript exception into an error.
func jsCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if jsErr, ok := r.(js.Error); ok {
				err = jsErr
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}
