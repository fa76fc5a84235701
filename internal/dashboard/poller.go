package dashboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 30 * time.Second

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval time.Duration
	Logger   zerolog.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Poller drives an Aggregator on a fixed interval.
type Poller struct {
	agg      *Aggregator
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
	trigger  chan struct{}
}

// NewPoller creates a poller for agg.
func NewPoller(agg *Aggregator, cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Poller{
		agg:      agg,
		interval: interval,
		logger:   cfg.Logger.With().Str("component", "poller").Logger(),
		now:      now,
		trigger:  make(chan struct{}, 1),
	}
}

// Run polls immediately, then on every tick and trigger, until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.agg.Poll(ctx, p.now())
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.agg.Poll(ctx, p.now())
		case <-p.trigger:
			p.logger.Debug().Msg("out-of-band poll")
			p.agg.Poll(ctx, p.now())
			ticker.Reset(p.interval)
		}
	}
}

// Trigger requests a poll as soon as the current one finishes. Requests
// made while one is already queued are merged; it reports whether this
// call queued a new one.
func (p *Poller) Trigger() bool {
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}
