package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/luciancaetano/tickbridge"
	"github.com/luciancaetano/tickbridge/ws"
)

func newConnectCmd(e *env) *cobra.Command {
	var (
		engine  string
		initial string
		binary  bool
		ticks   int
	)

	cmd := &cobra.Command{
		Use:   "connect <url>",
		Short: "Open a WebSocket, send stdin lines and print received messages once per tick",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := e.cfg
			if engine != "" {
				cfg.Client.WebSocket.Engine = engine
				if err := cfg.validate(); err != nil {
					return err
				}
			}

			logger := newLogger(cfg.Log, cmd.ErrOrStderr())
			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var first *tickbridge.Message
			if cmd.Flags().Changed("initial") {
				msg := outgoing(initial, binary)
				first = &msg
			}

			conn := client.Connect(ctx, args[0], first)
			defer conn.Close()
			logger.Info().Str("conn_id", conn.ID()).Str("url", conn.URL()).Msg("connecting")

			t := &tickLoop{
				conn:   conn,
				lines:  readLines(cmd.InOrStdin()),
				binary: binary,
				out:    cmd.OutOrStdout(),
				log:    logger,
			}
			return t.run(ctx, cfg.Tick, ticks)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&engine, "engine", "", "native engine: gorilla or coder")
	flags.StringVar(&initial, "initial", "", "message sent right after the handshake")
	flags.BoolVar(&binary, "binary", false, "send lines as binary frames")
	flags.IntVar(&ticks, "ticks", 0, "stop after this many ticks (0 runs until interrupted)")
	return cmd
}

// tickLoop is the frame-stepped host: each tick it sends pending stdin lines and drains inbound
// messages without blocking.
type tickLoop struct {
	conn   tickbridge.Connection
	lines  <-chan string
	binary bool
	out    io.Writer
	log    zerolog.Logger
	state  tickbridge.State
}

func (t *tickLoop) run(ctx context.Context, tick time.Duration, ticks int) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for n := 0; ticks <= 0 || n < ticks; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if done, err := t.step(); done {
			return err
		}
	}
	return nil
}

// step runs one tick. It reports done once the connection has closed.
func (t *tickLoop) step() (bool, error) {
	if state := t.conn.State(); state != t.state {
		t.state = state
		t.log.Debug().Stringer("state", state).Msg("connection state")
	}

	t.sendPending()

	for i := 0; i < tickbridge.DefaultDrainLimit; i++ {
		msg, err := t.conn.Recv()
		switch {
		case errors.Is(err, tickbridge.ErrEmpty):
			return false, nil
		case errors.Is(err, tickbridge.ErrClosed):
			return true, t.closed()
		}
		printMessage(t.out, msg)
	}
	return false, nil
}

func (t *tickLoop) sendPending() {
	for t.lines != nil {
		select {
		case line, ok := <-t.lines:
			if !ok {
				t.lines = nil
				return
			}
			if !t.conn.Send(outgoing(line, t.binary)) {
				return
			}
		default:
			return
		}
	}
}

func (t *tickLoop) closed() error {
	reason := t.conn.CloseReason()
	switch reason {
	case tickbridge.ReasonHandshakeFailed, tickbridge.ReasonReadFailed, tickbridge.ReasonWriteFailed:
		return fmt.Errorf("connection closed: %s", reason)
	}
	t.log.Info().Str("reason", string(reason)).Msg("connection closed")
	return nil
}

func outgoing(line string, binary bool) tickbridge.Message {
	if binary {
		return tickbridge.BinaryMessage([]byte(line))
	}
	return tickbridge.TextMessage(line)
}

func printMessage(w io.Writer, msg tickbridge.Message) {
	if msg.IsText() {
		fmt.Fprintln(w, msg.Text())
		return
	}
	fmt.Fprintf(w, "%s %x\n", msg.Kind, msg.Data)
}

// readLines feeds r line by line into a channel that is closed at EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func newClient(cfg *Config, logger zerolog.Logger) (*ws.Client, error) {
	clientCfg := *cfg.Client
	clientCfg.Logger = logger
	return ws.NewClient(&clientCfg)
}
