package publisher

import (
	"context"
	"log/slog"
	"time"
)

const sweepBatchSize = 100

type Sweeper interface {
	ExpireStaleOrders(ctx context.Context, cutoff time.Time, limit int) (int, error)
	ReleaseOrphanReservations(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// ReservationSweeper returns stock held by pending orders nobody confirmed
// and by reservations whose order was never stored.
type ReservationSweeper struct {
	interval    time.Duration
	pendingTTL  time.Duration
	orphanGrace time.Duration
	svc         Sweeper
	now         func() time.Time
	logger      *slog.Logger
}

// NewReservationSweeper builds a sweeper. orphanGrace must be longer than the
// place order timeout, otherwise reservations of in-flight checkouts would be
// taken back.
func NewReservationSweeper(svc Sweeper, logger *slog.Logger, interval, pendingTTL, orphanGrace time.Duration) *ReservationSweeper {
	return &ReservationSweeper{
		interval:    interval,
		pendingTTL:  pendingTTL,
		orphanGrace: orphanGrace,
		svc:         svc,
		now:         time.Now,
		logger:      logger,
	}
}

func (s *ReservationSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Sweep runs one pass. Expiring comes first so that stock of expired orders
// is already back before orphans are looked at.
func (s *ReservationSweeper) Sweep(ctx context.Context) (expired, released int) {
	now := s.now()

	expired, err := s.svc.ExpireStaleOrders(ctx, now.Add(-s.pendingTTL), sweepBatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to expire pending orders", "expired", expired, "error", err)
	}

	released, err = s.svc.ReleaseOrphanReservations(ctx, now.Add(-s.orphanGrace), sweepBatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to release orphan reservations", "released", released, "error", err)
	}

	if expired > 0 || released > 0 {
		s.logger.InfoContext(ctx, "reservation sweep finished", "expired", expired, "released", released)
	}
	return expired, released
}
