package echoserver

import (
	"context"
	"encoding/json"

	"github.com/luciancaetano/tickbridge"
)

// Built-in JSON-RPC methods
const (
	MethodEcho = "echo"
	MethodSum  = "sum"
	MethodFail = "fail"
)

// RegisterDefaultMethods registers echo, sum and fail.
//
//   - echo returns its params unchanged
//   - sum adds a JSON array of numbers
//   - fail returns an application error whose message is the string param
func (s *Server) RegisterDefaultMethods() {
	s.RegisterMethod(MethodEcho, echoMethod)
	s.RegisterMethod(MethodSum, sumMethod)
	s.RegisterMethod(MethodFail, failMethod)
}

func echoMethod(ctx context.Context, params json.RawMessage) (any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

func sumMethod(ctx context.Context, params json.RawMessage) (any, error) {
	var nums []float64
	if err := json.Unmarshal(params, &nums); err != nil {
		return nil, &RPCError{Code: tickbridge.JSONRPCInvalidParams, Message: "params must be an array of numbers"}
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total, nil
}

func failMethod(ctx context.Context, params json.RawMessage) (any, error) {
	msg := "fail"
	var s string
	if err := json.Unmarshal(params, &s); err == nil && s != "" {
		msg = s
	}
	return nil, &RPCError{Code: tickbridge.JSONRPCInternalError, Message: msg}
}
