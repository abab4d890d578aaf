package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/tickbridge"
	"github.com/luciancaetano/tickbridge/internal/metrics"
)

// waitResponse polls the handle the way a tick loop would
func waitResponse(t *testing.T, h *Handle) tickbridge.Response {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := h.Recv()
		if err == nil {
			return resp
		}
		require.ErrorIs(t, err, tickbridge.ErrEmpty)
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no response within deadline")
	return tickbridge.Response{}
}

// replyWith starts a server answering every POST with body and records the last request
func replyWith(t *testing.T, body string) (*httptest.Server, <-chan *http.Request, <-chan []byte) {
	t.Helper()
	reqs := make(chan *http.Request, 8)
	bodies := make(chan []byte, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		reqs <- r
		bodies <- b
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs, bodies
}

func TestRequestResult(t *testing.T) {
	t.Parallel()

	srv, _, _ := replyWith(t, `{"jsonrpc":"2.0","id":1,"result":42}`)
	h := NewBridge(nil, nil, nil).Request(context.Background(), srv.URL, "answer", 7, nil)

	assert.Equal(t, "answer", h.Method())
	assert.Equal(t, uint64(7), h.GID())

	resp := waitResponse(t, h)
	assert.False(t, resp.IsError())
	assert.JSONEq(t, `42`, string(resp.Result))
	assert.Nil(t, resp.Error)
}

func TestRequestClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		reply      string
		wantResult string
		wantError  string
	}{
		{
			name:      "application error",
			reply:     `{"jsonrpc":"2.0","id":1,"error":"bad"}`,
			wantError: `"bad"`,
		},
		{
			name:      "structured error",
			reply:     `{"error":{"code":-32601,"message":"Method not found"}}`,
			wantError: `{"code":-32601,"message":"Method not found"}`,
		},
		{
			name:       "null result is a result",
			reply:      `{"result":null}`,
			wantResult: `null`,
		},
		{
			name:       "result wins over error",
			reply:      `{"result":1,"error":"ignored"}`,
			wantResult: `1`,
		},
		{
			name:      "neither member",
			reply:     `{"jsonrpc":"2.0","id":1}`,
			wantError: `"Invalid response"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, _, _ := replyWith(t, tt.reply)
			resp := waitResponse(t, NewBridge(nil, nil, nil).Request(context.Background(), srv.URL, "m", 0, nil))

			if tt.wantResult != "" {
				require.False(t, resp.IsError())
				assert.JSONEq(t, tt.wantResult, string(resp.Result))
				return
			}
			require.True(t, resp.IsError())
			assert.Nil(t, resp.Result)
			assert.JSONEq(t, tt.wantError, string(resp.Error))
		})
	}
}

func TestRequestMalformedBody(t *testing.T) {
	t.Parallel()

	srv, _, _ := replyWith(t, `<html>oops</html>`)
	resp := waitResponse(t, NewBridge(nil, nil, nil).Request(context.Background(), srv.URL, "m", 0, nil))

	require.True(t, resp.IsError())
	var msg string
	require.NoError(t, json.Unmarshal(resp.Error, &msg), "transport errors are JSON strings")
	assert.Contains(t, msg, tickbridge.ErrDecodeResponse)
}

func TestRequestNetworkFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	resp := waitResponse(t, NewBridge(nil, nil, nil).Request(context.Background(), url, "m", 0, nil))

	require.True(t, resp.IsError())
	var msg string
	require.NoError(t, json.Unmarshal(resp.Error, &msg))
	assert.Contains(t, msg, tickbridge.ErrPostRequest)
}

func TestRequestEncodeFailure(t *testing.T) {
	t.Parallel()

	posted := false
	b := NewBridge(&Config{Poster: PosterFunc(func(ctx context.Context, url string, body []byte) ([]byte, error) {
		posted = true
		return nil, nil
	})}, nil, nil)

	h := b.Request(context.Background(), "http://unused", "m", 0, func() {})
	resp, err := h.Recv()
	require.NoError(t, err, "encode failures are delivered synchronously")
	require.True(t, resp.IsError())
	assert.Contains(t, string(resp.Error), tickbridge.ErrEncodeRequest)
	assert.False(t, posted)
}

func TestRequestEnvelope(t *testing.T) {
	t.Parallel()

	srv, reqs, bodies := replyWith(t, `{"result":true}`)
	b := NewBridge(nil, nil, nil)
	waitResponse(t, b.Request(context.Background(), srv.URL, "move", 99, map[string]int{"x": 1}))

	r := <-reqs
	body := <-bodies
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	assert.Equal(t, int64(len(body)), r.ContentLength)

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &env))
	assert.JSONEq(t, `"2.0"`, string(env["jsonrpc"]))
	assert.JSONEq(t, `"move"`, string(env["method"]))
	assert.JSONEq(t, `99`, string(env["gid"]))
	assert.JSONEq(t, `{"x":1}`, string(env["params"]))
	assert.JSONEq(t, `1`, string(env["id"]))

	waitResponse(t, b.Request(context.Background(), srv.URL, "move", 99, nil))
	body = <-bodies
	<-reqs
	require.NoError(t, json.Unmarshal(body, &env))
	assert.JSONEq(t, `2`, string(env["id"]), "ids increase per bridge")
	assert.JSONEq(t, `null`, string(env["params"]))
}

func TestRequestExtraFields(t *testing.T) {
	t.Parallel()

	srv, _, bodies := replyWith(t, `{"result":true}`)
	waitResponse(t, NewBridge(nil, nil, nil).Request(context.Background(), srv.URL, "m", 1, nil,
		F("token", "abc"),
		F("method", "override"),
		F("token", "xyz"),
	))

	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(<-bodies, &env))
	assert.JSONEq(t, `"xyz"`, string(env["token"]), "last write wins")
	assert.JSONEq(t, `"override"`, string(env["method"]), "extras may overwrite base members")
}

func TestRequestDeliveredOnce(t *testing.T) {
	t.Parallel()

	srv, _, _ := replyWith(t, `{"result":"once"}`)
	h := NewBridge(nil, nil, nil).Request(context.Background(), srv.URL, "m", 0, nil)

	assert.False(t, h.Delivered())
	resp := waitResponse(t, h)
	assert.JSONEq(t, `"once"`, string(resp.Result))
	assert.True(t, h.Delivered())

	for i := 0; i < 3; i++ {
		_, err := h.Recv()
		assert.ErrorIs(t, err, tickbridge.ErrClosed)
	}
}

func TestRequestConcurrentRecv(t *testing.T) {
	t.Parallel()

	srv, _, _ := replyWith(t, `{"result":1}`)
	h := NewBridge(nil, nil, nil).Request(context.Background(), srv.URL, "m", 0, nil)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				_, err := h.Recv()
				if err == nil {
					mu.Lock()
					got++
					mu.Unlock()
					return
				}
				if errors.Is(err, tickbridge.ErrClosed) {
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, got)
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	b := NewBridge(&Config{Timeout: 50 * time.Millisecond}, nil, nil)
	resp := waitResponse(t, b.Request(context.Background(), srv.URL, "slow", 0, nil))
	require.True(t, resp.IsError())
	assert.Contains(t, string(resp.Error), tickbridge.ErrPostRequest)
}

func TestRequestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	ok, _, _ := replyWith(t, `{"result":1}`)
	bad, _, _ := replyWith(t, `{"error":"no"}`)
	b := NewBridge(nil, nil, m)

	waitResponse(t, b.Request(context.Background(), ok.URL, "m", 0, nil))
	waitResponse(t, b.Request(context.Background(), bad.URL, "m", 0, nil))
	waitResponse(t, b.Request(context.Background(), "http://127.0.0.1:1", "m", 0, nil))

	expected := `
# HELP tickbridge_rpc_requests_total JSON-RPC calls completed, by outcome.
# TYPE tickbridge_rpc_requests_total counter
tickbridge_rpc_requests_total{outcome="error"} 1
tickbridge_rpc_requests_total{outcome="result"} 1
tickbridge_rpc_requests_total{outcome="transport_error"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tickbridge_rpc_requests_total"))
}
