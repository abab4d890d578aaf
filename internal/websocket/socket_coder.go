//go:build !js

package websocket

import (
	"context"
	"fmt"
	"io"
	"net/http"

	cws "github.com/coder/websocket"

	"github.com/luciancaetano/tickbridge"
)

// CoderDialer dials with github.com/coder/websocket.
type CoderDialer struct {
	ReadLimit int64
}

// Dial performs the handshake. The handshake deadline comes from ctx.
func (d CoderDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	conn, resp, err := cws.Dial(ctx, url, &cws.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &coderSocket{conn: conn}, nil
}

type coderSocket struct {
	conn *cws.Conn
}

func (s *coderSocket) ReadMessage(ctx context.Context) (tickbridge.Message, error) {
	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		if status := cws.CloseStatus(err); status != -1 {
			return tickbridge.Message{}, fmt.Errorf("%w: close status %d", io.EOF, status)
		}
		return tickbridge.Message{}, err
	}

	if typ == cws.MessageText {
		return tickbridge.Message{Kind: tickbridge.KindText, Data: data}, nil
	}
	return tickbridge.Message{Kind: tickbridge.KindBinary, Data: data}, nil
}

func (s *coderSocket) WriteMessage(ctx context.Context, msg tickbridge.Message) error {
	typ := cws.MessageBinary
	if msg.IsText() {
		typ = cws.MessageText
	}
	return s.conn.Write(ctx, typ, msg.Data)
}

// Close drops the connection without waiting for the peer's close frame.
func (s *coderSocket) Close() error {
	return s.conn.CloseNow()
}
