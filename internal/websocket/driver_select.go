//go:build !js

package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/luciancaetano/tickbridge"
	"github.com/luciancaetano/tickbridge/internal/queue"
)

func defaultDriver() driver {
	return selectDriver{}
}

// dialer resolves the Dialer of cfg.
func (cfg *Config) dialer() (Dialer, error) {
	if cfg.Dialer != nil {
		return cfg.Dialer, nil
	}
	switch cfg.Engine {
	case EngineGorilla, "":
		return GorillaDialer{HandshakeTimeout: cfg.HandshakeTimeout, ReadLimit: cfg.ReadLimit}, nil
	case EngineCoder:
		return CoderDialer{ReadLimit: cfg.ReadLimit}, nil
	default:
		return nil, fmt.Errorf("%s: %q", tickbridge.ErrUnknownEngine, cfg.Engine)
	}
}

// selectDriver owns the socket on a goroutine and multiplexes, in one select, new outbound
// messages against inbound frames produced by a reader goroutine.
type selectDriver struct{}

type frame struct {
	msg tickbridge.Message
	err error
}

func (selectDriver) run(ctx context.Context, s *session) {
	dialer, err := s.cfg.dialer()
	if err != nil {
		s.finish(tickbridge.ReasonHandshakeFailed, err)
		return
	}

	// Dropping the handle aborts the dial.
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	go func() {
		select {
		case <-s.end.Out.Done():
			cancel()
		case <-dialCtx.Done():
		}
	}()
	sock, err := dialer.Dial(dialCtx, s.url, s.cfg.Header)
	cancel()

	// A handle dropped before the socket opened gets no writes, queued or initial.
	if s.dropped() {
		if err == nil {
			sock.Close()
		}
		s.finish(tickbridge.ReasonConsumerClosed, nil)
		return
	}
	if err != nil {
		s.finish(tickbridge.ReasonHandshakeFailed, fmt.Errorf("%s: %w", tickbridge.ErrHandshake, err))
		return
	}

	s.open()

	if s.initial != nil {
		if err := s.write(ctx, sock, *s.initial); err != nil {
			s.diag.Warn().Err(err).Msg(tickbridge.ErrInitialMessage)
		}
	}

	frames := make(chan frame)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		readPump(ctx, sock, frames, stop)
	}()

	reason, err := s.loop(ctx, sock, frames)

	// No socket I/O past this point: the close unblocks the reader.
	close(stop)
	sock.Close()
	wg.Wait()

	s.finish(reason, err)
}

// loop runs until a terminal event and returns its reason.
func (s *session) loop(ctx context.Context, sock Socket, frames <-chan frame) (tickbridge.CloseReason, error) {
	for {
		select {
		case <-ctx.Done():
			return tickbridge.ReasonCancelled, ctx.Err()

		case f := <-frames:
			if f.err != nil {
				if errors.Is(f.err, io.EOF) {
					return tickbridge.ReasonRemoteClosed, f.err
				}
				return tickbridge.ReasonReadFailed, fmt.Errorf("%s: %w", tickbridge.ErrReadMessage, f.err)
			}
			s.deliver(f.msg)

		case <-s.end.Out.Ready():
			// One signal may stand for several messages.
			for {
				msg, err := s.end.Out.TryRecv()
				if errors.Is(err, queue.ErrEmpty) {
					break
				}
				if err != nil {
					return tickbridge.ReasonConsumerClosed, nil
				}
				if err := s.write(ctx, sock, msg); err != nil {
					return tickbridge.ReasonWriteFailed, err
				}
			}
		}
	}
}

// write sends one frame bounded by the configured write timeout.
func (s *session) write(ctx context.Context, sock Socket, msg tickbridge.Message) error {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	if err := sock.WriteMessage(wctx, msg); err != nil {
		return fmt.Errorf("%s: %w", tickbridge.ErrWriteMessage, err)
	}
	s.sent(msg)
	return nil
}

// readPump turns blocking socket reads into channel sends. It returns after the first error or
// once stop is closed.
func readPump(ctx context.Context, sock Socket, frames chan<- frame, stop <-chan struct{}) {
	for {
		msg, err := sock.ReadMessage(ctx)
		select {
		case frames <- frame{msg: msg, err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}
