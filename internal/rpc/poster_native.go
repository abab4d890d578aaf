//go:build !js

package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/luciancaetano/tickbridge"
)

// HTTPPoster posts with a net/http client.
type HTTPPoster struct {
	Client    *http.Client
	ReadLimit int64
}

func defaultPoster(readLimit int64) Poster {
	return &HTTPPoster{Client: http.DefaultClient, ReadLimit: readLimit}
}

func (p *HTTPPoster) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tickbridge.ErrPostRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.ContentLength = int64(len(body))

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tickbridge.ErrPostRequest, err)
	}
	defer resp.Body.Close()

	limit := p.ReadLimit
	if limit <= 0 {
		limit = tickbridge.DefaultReadLimit
	}
	reply, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tickbridge.ErrPostRequest, err)
	}
	return reply, nil
}
