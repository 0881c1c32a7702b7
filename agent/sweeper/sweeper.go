package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	statex "github.com/tanpawarit/movebot/agent/state"
	metricsx "github.com/tanpawarit/movebot/pkg/metrics"
)

const (
	DefaultWindow   = 24 * time.Hour
	DefaultInterval = time.Hour
)

// Sweeper deactivates sessions that have been idle longer than the window.
type Sweeper struct {
	store    statex.Store
	window   time.Duration
	interval time.Duration
	metrics  *metricsx.Metrics
	now      func() time.Time
}

func New(store statex.Store, window, interval time.Duration, metrics *metricsx.Metrics) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{store: store, window: window, interval: interval, metrics: metrics, now: time.Now}, nil
}

// SweepOnce runs a single pass and returns how many sessions it closed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.window)
	n, err := s.store.DeactivateIdle(ctx, cutoff)
	if n > 0 {
		s.metrics.SessionsSwept(n)
	}
	if err != nil {
		return n, err
	}
	zerolog.Ctx(ctx).Info().Int("deactivated", n).Time("cutoff", cutoff).Msg("idle sessions swept")
	return n, nil
}

// Run sweeps every interval until ctx is done. Failed passes are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("sweep failed")
			}
		}
	}
}
