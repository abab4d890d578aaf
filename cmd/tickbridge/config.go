package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/luciancaetano/tickbridge/internal/echoserver"
	"github.com/luciancaetano/tickbridge/ws"
)

const envPrefix = "TICKBRIDGE"

// Config is the CLI configuration.
type Config struct {
	// Tick is the host frame interval used by connect and request
	Tick time.Duration `mapstructure:"tick"`

	Log    LogConfig          `mapstructure:"log"`
	Client *ws.Config         `mapstructure:"client"`
	Server *echoserver.Config `mapstructure:"server"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
}

// defaultConfig returns the CLI defaults: a 60Hz tick and console logs at info.
func defaultConfig() *Config {
	return &Config{
		Tick:   time.Second / 60,
		Log:    LogConfig{Level: "info", Format: "console"},
		Client: ws.DefaultConfig(),
		Server: echoserver.DefaultConfig(),
	}
}

// loadConfig reads the configuration from path (if non-empty), otherwise from tickbridge.yaml in
// the usual locations. Environment variables use the prefix TICKBRIDGE with `.` and `-` replaced
// by `_`, e.g. TICKBRIDGE_CLIENT_WEBSOCKET_ENGINE=coder.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("tick", cfg.Tick)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("client.websocket.engine", cfg.Client.WebSocket.Engine)
	v.SetDefault("client.websocket.handshake_timeout", cfg.Client.WebSocket.HandshakeTimeout)
	v.SetDefault("client.websocket.write_timeout", cfg.Client.WebSocket.WriteTimeout)
	v.SetDefault("client.websocket.read_limit", cfg.Client.WebSocket.ReadLimit)
	v.SetDefault("client.request.timeout", cfg.Client.Request.Timeout)
	v.SetDefault("client.request.read_limit", cfg.Client.Request.ReadLimit)
	v.SetDefault("client.diagnostics.per_second", float64(cfg.Client.Diagnostics.PerSecond))
	v.SetDefault("client.diagnostics.burst", cfg.Client.Diagnostics.Burst)
	v.SetDefault("client.diagnostics.enabled", cfg.Client.Diagnostics.Enabled)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.rate_limit.messages_per_second", float64(cfg.Server.RateLimitConfig.MessagesPerSecond))
	v.SetDefault("server.rate_limit.burst", cfg.Server.RateLimitConfig.Burst)
	v.SetDefault("server.rate_limit.enabled", cfg.Server.RateLimitConfig.Enabled)

	if path == "" {
		if envPath := os.Getenv(envPrefix + "_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tickbridge")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tickbridge"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "":
		c.Log.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}

	switch c.Client.WebSocket.Engine {
	case ws.EngineGorilla, ws.EngineCoder:
	default:
		return fmt.Errorf("invalid client.websocket.engine: %q", c.Client.WebSocket.Engine)
	}

	if c.Tick <= 0 {
		return fmt.Errorf("invalid tick: %s", c.Tick)
	}
	return nil
}
