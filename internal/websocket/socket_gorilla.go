//go:build !js

package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luciancaetano/tickbridge"
)

// GorillaDialer dials with github.com/gorilla/websocket.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
}

// Dial performs the handshake. The response body is closed on failure.
func (d GorillaDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &gorillaSocket{conn: conn}, nil
}

type gorillaSocket struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (s *gorillaSocket) ReadMessage(ctx context.Context) (tickbridge.Message, error) {
	typ, data, err := s.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return tickbridge.Message{}, fmt.Errorf("%w: %s", io.EOF, ce.Error())
		}
		return tickbridge.Message{}, err
	}

	// ReadMessage only surfaces data frames; control frames go to handlers.
	if typ == websocket.TextMessage {
		return tickbridge.Message{Kind: tickbridge.KindText, Data: data}, nil
	}
	return tickbridge.Message{Kind: tickbridge.KindBinary, Data: data}, nil
}

func (s *gorillaSocket) WriteMessage(ctx context.Context, msg tickbridge.Message) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	} else {
		s.conn.SetWriteDeadline(time.Time{})
	}

	typ := websocket.BinaryMessage
	if msg.IsText() {
		typ = websocket.TextMessage
	}
	return s.conn.WriteMessage(typ, msg.Data)
}

// Close sends a normal close frame, best-effort, then drops the connection.
func (s *gorillaSocket) Close() error {
	s.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		deadline := time.Now().Add(time.Second)
		s.conn.WriteControl(websocket.CloseMessage, message, deadline)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
