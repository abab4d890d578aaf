package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/tickbridge"
	"github.com/luciancaetano/tickbridge/ws"
)

var errCallFailed = errors.New("call returned an error")

func newRequestCmd(e *env) *cobra.Command {
	var (
		gid    uint64
		fields []string
	)

	cmd := &cobra.Command{
		Use:   "request <url> <method> [params]",
		Short: "Post one JSON-RPC call and poll for its response once per tick",
		Long: "Post one JSON-RPC 2.0 call. params must be a JSON value. Each --field key=value is merged into " +
			"the envelope in order; value is parsed as JSON and falls back to a string.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params any
			if len(args) == 3 {
				if !json.Valid([]byte(args[2])) {
					return fmt.Errorf("params is not valid JSON: %s", args[2])
				}
				params = json.RawMessage(args[2])
			}

			extra, err := parseFields(fields)
			if err != nil {
				return err
			}

			logger := newLogger(e.cfg.Log, cmd.ErrOrStderr())
			client, err := newClient(e.cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := client.Request(ctx, args[0], args[1], gid, params, extra...)
			resp, err := pollRequest(ctx, req, e.cfg.Tick)
			if err != nil {
				return err
			}
			return printResponse(cmd.OutOrStdout(), resp)
		},
	}

	flags := cmd.Flags()
	flags.Uint64Var(&gid, "gid", 0, "correlation id sent as the gid member")
	flags.StringArrayVar(&fields, "field", nil, "extra envelope member as key=value (repeatable)")
	return cmd
}

// pollRequest checks the handle once per tick until the response arrives.
func pollRequest(ctx context.Context, req tickbridge.Request, tick time.Duration) (tickbridge.Response, error) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return tickbridge.Response{}, ctx.Err()
		case <-ticker.C:
		}

		resp, err := req.Recv()
		switch {
		case err == nil:
			return resp, nil
		case errors.Is(err, tickbridge.ErrClosed):
			return tickbridge.Response{}, fmt.Errorf("request %s closed without a response", req.Method())
		}
	}
}

func printResponse(w io.Writer, resp tickbridge.Response) error {
	if resp.IsError() {
		fmt.Fprintln(w, string(resp.Error))
		return errCallFailed
	}
	fmt.Fprintln(w, string(resp.Result))
	return nil
}

func parseFields(raw []string) ([]ws.Field, error) {
	fields := make([]ws.Field, 0, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q, want key=value", kv)
		}
		if json.Valid([]byte(value)) {
			fields = append(fields, ws.F(key, json.RawMessage(value)))
		} else {
			fields = append(fields, ws.F(key, value))
		}
	}
	return fields, nil
}
