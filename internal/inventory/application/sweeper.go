package application

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper expires stale ACTIVE reservations in the background. It never touches
// stock: an expired hold simply stops counting against availability.
type Sweeper struct {
	log       *slog.Logger
	store     ReservationStore
	manager   *Manager
	interval  time.Duration
	batchSize int
}

func NewSweeper(log *slog.Logger, store ReservationStore, manager *Manager, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		log:       log,
		store:     store,
		manager:   manager,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping")
			return nil
		case <-t.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				s.log.Error("sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.log.Info("sweep expired reservations", "count", n)
			}
		}
	}
}

// SweepOnce expires every reservation that is stale at the current time and
// returns how many this call expired.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.manager.Now()
	expired := 0
	for {
		candidates, err := s.store.FindActiveExpired(ctx, now, s.batchSize)
		if err != nil {
			return expired, err
		}
		progressed := false
		for _, r := range candidates {
			ok, err := s.manager.ExpireIfStale(ctx, r.ID, now)
			if err != nil {
				s.log.Error("expire reservation failed", "reservation_id", r.ID, "err", err)
				continue
			}
			if ok {
				expired++
				progressed = true
			}
		}
		if len(candidates) < s.batchSize || !progressed {
			return expired, nil
		}
	}
}
