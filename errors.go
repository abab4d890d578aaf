package tickbridge

import (
	"io"

	"code.hybscloud.com/iox"
)

// RecvError is the result of a non-blocking receive that produced no value.
//
// It has exactly two values, ErrEmpty and ErrClosed. Every queue and channel used internally is
// converted to one of them before it reaches the caller.
type RecvError uint8

const (
	// ErrEmpty means nothing is available right now. It is not terminal.
	ErrEmpty RecvError = iota + 1
	// ErrClosed means nothing will ever be available again.
	ErrClosed
)

func (e RecvError) Error() string {
	switch e {
	case ErrEmpty:
		return "tickbridge: receive queue empty"
	case ErrClosed:
		return "tickbridge: receive queue closed"
	default:
		return "tickbridge: unknown receive error"
	}
}

// Unwrap maps ErrEmpty onto iox.ErrWouldBlock and ErrClosed onto io.EOF.
func (e RecvError) Unwrap() error {
	switch e {
	case ErrEmpty:
		return iox.ErrWouldBlock
	case ErrClosed:
		return io.EOF
	default:
		return nil
	}
}

// Temporary reports whether retrying the receive later can succeed.
func (e RecvError) Temporary() bool {
	return e == ErrEmpty
}
