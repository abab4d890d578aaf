package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/luciancaetano/tickbridge"
)

// Field is an extra top-level member merged into the request envelope.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for Field{Key: key, Value: value}.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// envelope builds the JSON-RPC 2.0 request body.
//
// Extras are applied in order after the base members, so a later field replaces an earlier one
// and any extra may overwrite jsonrpc, id, gid, method or params.
func envelope(id uint32, gid uint64, method string, params any, extra []Field) ([]byte, error) {
	env := map[string]any{
		"jsonrpc": tickbridge.JSONRPCVersion,
		"id":      id,
		"method":  method,
		"params":  params,
	}
	env[tickbridge.FieldCorrelationID] = gid
	for _, f := range extra {
		env[f.Key] = f.Value
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tickbridge.ErrEncodeRequest, err)
	}
	return body, nil
}

// classify turns a reply body into a Response.
//
// A present "result" member wins, even when it is null. Otherwise "error" is returned as the
// application error, and a body with neither becomes the "Invalid response" error.
func classify(body []byte) (tickbridge.Response, error) {
	var reply map[string]json.RawMessage
	if err := json.Unmarshal(body, &reply); err != nil {
		return tickbridge.Response{}, fmt.Errorf("%s: %w", tickbridge.ErrDecodeResponse, err)
	}

	if result, ok := reply["result"]; ok {
		return tickbridge.Response{Result: result}, nil
	}
	if rpcErr, ok := reply["error"]; ok {
		return tickbridge.Response{Error: rpcErr}, nil
	}
	return tickbridge.Response{Error: jsonString(tickbridge.ErrInvalidResponse)}, nil
}

// jsonString encodes s as a JSON string value.
func jsonString(s string) json.RawMessage {
	raw, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`"` + tickbridge.ErrInternalError + `"`)
	}
	return raw
}
