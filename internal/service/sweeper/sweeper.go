package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/courseauth/internal/logger"
)

const defaultInterval = 5 * time.Minute

type expiredCloser interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically closes sessions whose refresh token is expired
type Sweeper struct {
	interval time.Duration
	sessions expiredCloser
	logger   logger.Logger
}

func New(interval time.Duration, sessions expiredCloser, l logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Sweeper{
		interval: interval,
		sessions: sessions,
		logger:   l,
	}
}

// Run sweeps on every tick until ctx is done. Returned channel is closed when it stops
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting session sweeper", "interval", s.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Session sweeper stopped by context")
				return

			case <-ticker.C:
				closed, err := s.sessions.SweepExpired(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Error("Failed to sweep expired sessions", "error", err)
					continue
				}
				if closed > 0 {
					s.logger.Info("Expired sessions closed", "count", closed)
				}
			}
		}
	}()

	return idleStopped
}
