package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luciancaetano/tickbridge/internal/echoserver"
	"github.com/luciancaetano/tickbridge/ws"
)

func startEcho(t *testing.T) string {
	t.Helper()
	server := echoserver.New(&echoserver.Config{Addr: "127.0.0.1:0", RateLimitConfig: echoserver.NoRateLimit()})
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Stop(ctx)
	})
	return server.Addr().String()
}

// execute runs the CLI with args and returns stdout
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, time.Second/60, cfg.Tick)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ws.EngineGorilla, cfg.Client.WebSocket.Engine)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Server.RateLimitConfig.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tick: 5ms
log:
  level: debug
  format: json
client:
  websocket:
    engine: coder
    handshake_timeout: 2s
  request:
    timeout: 3s
server:
  addr: 127.0.0.1:9999
  rate_limit:
    enabled: false
`), 0o600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, cfg.Tick)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ws.EngineCoder, cfg.Client.WebSocket.Engine)
	assert.Equal(t, 2*time.Second, cfg.Client.WebSocket.HandshakeTimeout)
	assert.Equal(t, 3*time.Second, cfg.Client.Request.Timeout)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.False(t, cfg.Server.RateLimitConfig.Enabled)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TICKBRIDGE_CLIENT_WEBSOCKET_ENGINE", "coder")
	t.Setenv("TICKBRIDGE_LOG_LEVEL", "warn")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ws.EngineCoder, cfg.Client.WebSocket.Engine)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
		want string
	}{
		{name: "log level", env: "TICKBRIDGE_LOG_LEVEL", val: "loud", want: "log.level"},
		{name: "log format", env: "TICKBRIDGE_LOG_FORMAT", val: "xml", want: "log.format"},
		{name: "engine", env: "TICKBRIDGE_CLIENT_WEBSOCKET_ENGINE", val: "netpoll", want: "engine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.env, tt.val)
			_, err := loadConfig("")
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRequestCommand(t *testing.T) {
	addr := startEcho(t)
	rpcURL := "http://" + addr + "/rpc"
	t.Chdir(t.TempDir())

	out, err := execute(t, "", "--tick", "1ms", "request", rpcURL, "sum", "[1,2,3]", "--gid", "4")
	require.NoError(t, err)
	assert.Equal(t, "6\n", out)

	out, err = execute(t, "", "--tick", "1ms", "request", rpcURL, "echo", `{"a":1}`, "--field", "method=sum", "--field", "params=[5,5]")
	require.NoError(t, err)
	assert.Equal(t, "10\n", out, "fields overwrite base members in order")

	out, err = execute(t, "", "--tick", "1ms", "request", rpcURL, "fail", `"nope"`)
	require.ErrorIs(t, err, errCallFailed)
	assert.Contains(t, out, "nope")

	_, err = execute(t, "", "request", rpcURL, "echo", "{bad")
	assert.ErrorContains(t, err, "not valid JSON")
}

func TestConnectCommand(t *testing.T) {
	addr := startEcho(t)
	t.Chdir(t.TempDir())

	out, err := execute(t, "one\ntwo\n", "--tick", "2ms", "connect", "ws://"+addr+"/ws", "--ticks", "1000", "--initial", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\none\ntwo\n", out)
}

func TestConnectCommandHandshakeFailure(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "", "--tick", "1ms", "connect", "ws://127.0.0.1:1/ws", "--ticks", "5000")
	assert.ErrorContains(t, err, "handshake failed")
}

func TestParseFields(t *testing.T) {
	t.Parallel()

	fields, err := parseFields([]string{"n=1", "s=plain", `o={"k":true}`})
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "n", fields[0].Key)
	assert.Equal(t, "plain", fields[1].Value)

	_, err = parseFields([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseFields([]string{"=x"})
	assert.Error(t, err)
}
