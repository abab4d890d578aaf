// Package diag emits best-effort diagnostics for failures that are never returned to callers.
package diag

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config throttles diagnostic output.
type Config struct {
	// PerSecond is the sustained number of failure reports per second
	PerSecond rate.Limit `mapstructure:"per_second"`
	// Burst is the number of reports allowed at once
	Burst int `mapstructure:"burst"`
	// Enabled turns throttling on; when false every report is written
	Enabled bool `mapstructure:"enabled"`
}

// DefaultConfig allows 10 failure reports per second with a burst of 20
func DefaultConfig() *Config {
	return &Config{
		PerSecond: 10,
		Burst:     20,
		Enabled:   true,
	}
}

// Reporter writes diagnostics to a zerolog.Logger. Warn and Error reports share one token bucket;
// Debug is never throttled.
type Reporter struct {
	log        zerolog.Logger
	limiter    *rate.Limiter
	suppressed *atomic.Uint64
}

// New creates a Reporter. A nil cfg disables throttling.
func New(logger zerolog.Logger, cfg *Config) *Reporter {
	var limiter *rate.Limiter
	if cfg != nil && cfg.Enabled {
		limiter = rate.NewLimiter(cfg.PerSecond, cfg.Burst)
	}
	return &Reporter{
		log:        logger,
		limiter:    limiter,
		suppressed: new(atomic.Uint64),
	}
}

// Nop returns a Reporter that discards everything.
func Nop() *Reporter {
	return New(zerolog.Nop(), nil)
}

// Logger returns the underlying logger.
func (r *Reporter) Logger() *zerolog.Logger {
	return &r.log
}

// With returns a Reporter sharing this one's throttle, logging through a derived logger.
func (r *Reporter) With(fn func(zerolog.Context) zerolog.Context) *Reporter {
	return &Reporter{
		log:        fn(r.log.With()).Logger(),
		limiter:    r.limiter,
		suppressed: r.suppressed,
	}
}

// Debug starts a debug event. Debug events are not throttled.
func (r *Reporter) Debug() *zerolog.Event {
	return r.log.Debug()
}

// Warn starts a throttled warning event. It returns nil, which zerolog treats as a no-op, when
// the throttle is exhausted.
func (r *Reporter) Warn() *zerolog.Event {
	if !r.allow() {
		return nil
	}
	return r.log.Warn()
}

// Error starts a throttled error event. It returns nil when the throttle is exhausted.
func (r *Reporter) Error() *zerolog.Event {
	if !r.allow() {
		return nil
	}
	return r.log.Error()
}

// Suppressed returns how many reports the throttle dropped.
func (r *Reporter) Suppressed() uint64 {
	return r.suppressed.Load()
}

func (r *Reporter) allow() bool {
	if r.limiter == nil || r.limiter.Allow() {
		return true
	}
	r.suppressed.Add(1)
	return false
}
