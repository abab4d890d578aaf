// Package rpc posts one-shot JSON-RPC 2.0 calls over HTTP and hands the reply to a polling
// consumer.
package rpc

import (
	"context"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/luciancaetano/tickbridge"
	"github.com/luciancaetano/tickbridge/internal/diag"
	"github.com/luciancaetano/tickbridge/internal/metrics"
)

// Poster sends one request body and returns the reply body. The HTTP status is not inspected.
type Poster interface {
	Post(ctx context.Context, url string, body []byte) ([]byte, error)
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(ctx context.Context, url string, body []byte) ([]byte, error)

func (f PosterFunc) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	return f(ctx, url, body)
}

// Config holds the request settings.
type Config struct {
	// Timeout bounds each call. Zero means no timeout beyond the caller's context.
	Timeout time.Duration `mapstructure:"timeout"`
	// ReadLimit caps the reply body size.
	ReadLimit int64 `mapstructure:"read_limit"`
	// Poster overrides the platform transport.
	Poster Poster `mapstructure:"-"`
}

// DefaultConfig returns the default request settings.
func DefaultConfig() *Config {
	return &Config{
		Timeout:   tickbridge.DefaultRequestTimeout,
		ReadLimit: tickbridge.DefaultReadLimit,
	}
}

// Bridge issues calls. It is safe for concurrent use.
type Bridge struct {
	seq     atomix.Uint32
	timeout time.Duration
	poster  Poster
	diag    *diag.Reporter
	metrics *metrics.Collector
}

// NewBridge creates a bridge. A nil cfg uses DefaultConfig, a nil rep discards diagnostics and a
// nil m records nothing.
func NewBridge(cfg *Config, rep *diag.Reporter, m *metrics.Collector) *Bridge {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if rep == nil {
		rep = diag.Nop()
	}

	poster := cfg.Poster
	if poster == nil {
		limit := cfg.ReadLimit
		if limit <= 0 {
			limit = tickbridge.DefaultReadLimit
		}
		poster = defaultPoster(limit)
	}

	return &Bridge{
		timeout: cfg.Timeout,
		poster:  poster,
		diag:    rep,
		metrics: m,
	}
}

// Request posts the call in the background and returns its handle at once.
//
// The envelope carries a per-bridge increasing id, gid, method and params, then every extra field
// in order. Exactly one Response is delivered to the handle.
func (b *Bridge) Request(ctx context.Context, url, method string, gid uint64, params any, extra ...Field) *Handle {
	h := newHandle(method, gid)
	id := b.seq.Add(1)

	body, err := envelope(id, gid, method, params, extra)
	if err != nil {
		b.fail(h, url, err)
		return h
	}

	go b.post(ctx, h, url, body)
	return h
}

func (b *Bridge) post(ctx context.Context, h *Handle, url string, body []byte) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	reply, err := b.poster.Post(ctx, url, body)
	if err != nil {
		b.fail(h, url, err)
		return
	}

	resp, err := classify(reply)
	if err != nil {
		b.fail(h, url, err)
		return
	}

	if resp.IsError() {
		b.metrics.RequestDone(metrics.OutcomeError)
	} else {
		b.metrics.RequestDone(metrics.OutcomeResult)
	}
	b.diag.Debug().Str("method", h.method).Uint64("gid", h.gid).Bool("error", resp.IsError()).Msg("request completed")
	h.resolve(resp)
}

// fail delivers a transport failure as a JSON string error.
func (b *Bridge) fail(h *Handle, url string, err error) {
	b.metrics.RequestDone(metrics.OutcomeTransport)
	if ev := b.diag.Warn(); ev != nil {
		ev.Err(err).Str("method", h.method).Uint64("gid", h.gid).Str("url", url).Msg("request failed")
	}
	h.resolve(tickbridge.Response{Error: jsonString(err.Error())})
}
