package commandq

import (
	"context"
	"time"

	"sprout/internal/logs"
)

// Sweeper periodically runs the timeout sweep. The sweep itself is safe to run
// from many instances at once; the ticker is just this instance's schedule.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{svc: svc, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := s.svc.SweepTimeouts(now.UTC())
			if err != nil {
				logs.Logger.Errorf("timeout sweep: %v", err)
				continue
			}
			if n > 0 {
				logs.Logger.Infof("timeout sweep: %d command(s) timed out", n)
			}
		}
	}
}
