// Command tickbridge drives the bridge from a terminal: connect polls a WebSocket once per tick,
// request issues one JSON-RPC call, serve runs the echo server.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("execute root command")
		os.Exit(1)
	}
}

// env carries what every subcommand needs after flags and config are resolved.
type env struct {
	configPath string
	logLevel   string
	tick       time.Duration
	cfg        *Config
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "tickbridge",
		Short:         "Poll-based WebSocket and JSON-RPC client for tick-driven hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(e.configPath)
			if err != nil {
				return err
			}
			if e.logLevel != "" {
				cfg.Log.Level = e.logLevel
			}
			if e.tick > 0 {
				cfg.Tick = e.tick
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			e.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.configPath, "config", "", "config file (default ./tickbridge.yaml)")
	flags.StringVar(&e.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.DurationVar(&e.tick, "tick", 0, "host frame interval (default from config, 1/60s)")

	root.AddCommand(newConnectCmd(e), newRequestCmd(e), newServeCmd(e))
	return root
}
