package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Runner invokes the sweep on a fixed interval until the context is done.
type Runner struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

// NewRunner creates a background sweep runner.
func NewRunner(service *Service, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{service: service, interval: interval, logger: logger}
}

// Start blocks, sweeping every interval. The kill switch is evaluated on
// every tick inside Run, so sweeps can be disabled while the loop keeps
// ticking.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("starting retry sweep loop", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retry sweep loop stopped")
			return
		case <-ticker.C:
			if _, err := r.service.Run(ctx); err != nil {
				r.logger.Error("retry sweep failed", "error", err)
			}
		}
	}
}
