package rpc

import (
	"sync/atomic"

	"github.com/luciancaetano/tickbridge"
)

// Handle is the consumer side of one call. It implements tickbridge.Request.
type Handle struct {
	method    string
	gid       uint64
	ch        chan tickbridge.Response
	delivered atomic.Bool
}

var _ tickbridge.Request = (*Handle)(nil)

func newHandle(method string, gid uint64) *Handle {
	return &Handle{
		method: method,
		gid:    gid,
		ch:     make(chan tickbridge.Response, 1),
	}
}

// Method returns the JSON-RPC method name.
func (h *Handle) Method() string {
	return h.method
}

// GID returns the correlation id sent with the call.
func (h *Handle) GID() uint64 {
	return h.gid
}

// Recv never blocks. It returns ErrEmpty until the reply arrives, the Response once, and
// ErrClosed afterwards.
func (h *Handle) Recv() (tickbridge.Response, error) {
	select {
	case resp, ok := <-h.ch:
		if !ok {
			return tickbridge.Response{}, tickbridge.ErrClosed
		}
		h.delivered.Store(true)
		return resp, nil
	default:
		return tickbridge.Response{}, tickbridge.ErrEmpty
	}
}

// Delivered reports whether Recv has returned the Response.
func (h *Handle) Delivered() bool {
	return h.delivered.Load()
}

// resolve stores the single Response and closes the channel. Only the request goroutine calls it.
func (h *Handle) resolve(resp tickbridge.Response) {
	h.ch <- resp
	close(h.ch)
}
