package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/blogaccount/internal/logger"
)

const defaultInterval = time.Hour

type sessionService interface {
	SweepExpired(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	// How often to sweep. Default is one hour
	Interval time.Duration

	// Sessions issued longer than retention ago are deleted
	// Refresh token lifetime is a good value: older sessions can't be redeemed anyway
	Retention time.Duration
}

// Periodically deletes stale refresh sessions
// Signature expiry rejects old refresh tokens already, sweeping only reclaims storage
type Sweeper struct {
	interval  time.Duration
	retention time.Duration
	service   sessionService
	logger    logger.Logger

	now func() time.Time
}

func New(cfg Config, service sessionService, logger logger.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	return &Sweeper{
		interval:  cfg.Interval,
		retention: cfg.Retention,
		service:   service,
		logger:    logger,
		now:       time.Now,
	}
}

// Sweep once
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	before := s.now().Add(-s.retention)

	n, err := s.service.SweepExpired(ctx, before)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Stale refresh sessions swept", "count", n, "before", before)
	return n, nil
}

// Start sweeping every interval until context is done
// Returned channel is closed when the sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.interval, "retention", s.retention)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("Failed to sweep refresh sessions", "error", err)
				}
			}
		}
	}()

	return idleStopped
}
