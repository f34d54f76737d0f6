// Package statspoll keeps the aggregate usage counters fresh, either by
// polling /api/stats or by subscribing to /ws/stats.
package statspoll

import (
	"context"
	"time"

	"github.com/raysh454/fastscan/internal/logging"
	"github.com/raysh454/fastscan/internal/model"
)

const DefaultInterval = 30 * time.Second

// StatsAPI fetches the counters.
type StatsAPI interface {
	Stats(ctx context.Context) (*model.Stats, error)
}

// Poller fetches stats immediately and then on every tick.
type Poller struct {
	api      StatsAPI
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
}

func NewPoller(api StatsAPI, interval time.Duration, logger logging.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Poller{
		api:      api,
		interval: interval,
		timeout:  10 * time.Second,
		logger:   logger.With(logging.Field{Key: "component", Value: "statspoll"}),
	}
}

// Run blocks until ctx is done, calling onStats after every successful fetch.
// Failed fetches are logged and skipped.
func (p *Poller) Run(ctx context.Context, onStats func(model.Stats)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	fetch := func() {
		fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
		st, err := p.api.Stats(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("stats refresh failed", logging.Field{Key: "error", Value: err.Error()})
			}
			return
		}
		onStats(*st)
	}

	// First fetch immediately.
	fetch()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetch()
		}
	}
}
