//go:build js && wasm

package rpc

import (
	"context"
	"errors"
	"fmt"
	"syscall/js"

	"github.com/luciancaetano/tickbridge"
)

var (
	_Fetch           = js.Global().Get("fetch")
	_AbortController = js.Global().Get("AbortController")
	_Object          = js.Global().Get("Object")
)

// FetchPoster posts with the browser fetch API.
type FetchPoster struct {
	ReadLimit int64
}

func defaultPoster(readLimit int64) Poster {
	return &FetchPoster{ReadLimit: readLimit}
}

// Post must not be called from a JS callback: it waits on promise callbacks that run on the
// event loop.
func (p *FetchPoster) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	if _Fetch.IsUndefined() {
		return nil, fmt.Errorf("%s: fetch API not supported", tickbridge.ErrPostRequest)
	}

	// Content-Length is a forbidden header in browsers; fetch derives it from the body.
	headers := _Object.New()
	headers.Set("Content-Type", "application/json")

	opts := _Object.New()
	opts.Set("method", "POST")
	opts.Set("headers", headers)
	opts.Set("body", string(body))

	var abort js.Value
	if !_AbortController.IsUndefined() {
		abort = _AbortController.New()
		opts.Set("signal", abort.Get("signal"))
	}

	resultCh := make(chan []byte, 1)
	errCh := make(chan error, 1)

	var textSuccess, textFailure js.Func

	success := js.FuncOf(func(this js.Value, args []js.Value) any {
		response := args[0]

		textSuccess = js.FuncOf(func(this js.Value, args []js.Value) any {
			text := args[0].String()
			if p.ReadLimit > 0 && int64(len(text)) > p.ReadLimit {
				text = text[:p.ReadLimit]
			}
			resultCh <- []byte(text)
			return nil
		})
		textFailure = js.FuncOf(func(this js.Value, args []js.Value) any {
			errCh <- errors.New("failed to read body")
			return nil
		})

		response.Call("text").Call("then", textSuccess).Call("catch", textFailure)
		return nil
	})

	failure := js.FuncOf(func(this js.Value, args []js.Value) any {
		msg := "fetch failed"
		if len(args) > 0 && args[0].Type() == js.TypeObject {
			if m := args[0].Get("message"); m.Type() == js.TypeString {
				msg = m.String()
			}
		}
		errCh <- errors.New(msg)
		return nil
	})

	release := true
	defer func() {
		if !release {
			return
		}
		success.Release()
		failure.Release()
		if textSuccess.Truthy() {
			textSuccess.Release()
		}
		if textFailure.Truthy() {
			textFailure.Release()
		}
	}()

	_Fetch.Invoke(url, opts).Call("then", success).Call("catch", failure)

	select {
	case data := <-resultCh:
		return data, nil
	case err := <-errCh:
		return nil, fmt.Errorf("%s: %w", tickbridge.ErrPostRequest, err)
	case <-ctx.Done():
		if abort.Truthy() {
			// An aborted fetch always settles, so the callbacks can be released after it.
			abort.Call("abort")
			select {
			case <-resultCh:
			case <-errCh:
			}
		} else {
			release = false
		}
		return nil, fmt.Errorf("%s: %w", tickbridge.ErrPostRequest, ctx.Err())
	}
}
