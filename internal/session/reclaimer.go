package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/baodeli/support-desk/pkg/logger"
)

// DefaultSweepInterval is how often the reclaimer scans for idle sessions.
const DefaultSweepInterval = 30 * time.Second

// Reclaimer periodically sweeps idle human sessions back to the automated
// responder. It runs independently of message traffic; an interrupted pass
// leaves some sessions for the next interval, which is an accepted staleness
// window.
type Reclaimer struct {
	engine   *Engine
	interval time.Duration
	logger   *logger.Logger
}

// NewReclaimer creates a reclaimer. A zero interval defaults to
// DefaultSweepInterval.
func NewReclaimer(engine *Engine, interval time.Duration, log *logger.Logger) *Reclaimer {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Reclaimer{
		engine:   engine,
		interval: interval,
		logger:   log,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	r.logger.Info("timeout reclaimer started",
		zap.Duration("interval", r.interval),
		zap.Duration("idle_threshold", r.engine.IdleThreshold()),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("timeout reclaimer stopped")
			return
		case <-ticker.C:
			if _, err := r.engine.SweepNow(ctx); err != nil {
				r.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}
