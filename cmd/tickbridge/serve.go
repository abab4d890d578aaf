package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/luciancaetano/tickbridge/internal/echoserver"
)

func newServeCmd(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the echo server: WebSocket echo at /ws, JSON-RPC at /rpc, metrics at /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(e.cfg.Log, cmd.ErrOrStderr())

			scfg := *e.cfg.Server
			if addr != "" {
				scfg.Addr = addr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			scfg.Gatherer = reg
			scfg.Logger = logger
			scfg.OnConnect = func(p *echoserver.Peer) {
				logger.Info().Str("peer_id", p.ID()).Str("remote_addr", p.RemoteAddr()).Msg("peer connected")
			}
			scfg.OnDisconnect = func(p *echoserver.Peer, voluntary bool) {
				logger.Info().Str("peer_id", p.ID()).Bool("voluntary", voluntary).Msg("peer disconnected")
			}

			server := echoserver.New(&scfg)
			reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "tickbridge",
				Subsystem: "echo",
				Name:      "peers",
				Help:      "WebSocket peers connected to the echo server.",
			}, func() float64 {
				return float64(server.Peers())
			}))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := server.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Stop(stopCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}
