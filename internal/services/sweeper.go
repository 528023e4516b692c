package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/suuupra/upi-switch/internal/metrics"
	"github.com/suuupra/upi-switch/internal/models"
	repo "github.com/suuupra/upi-switch/internal/repository"
)

const sweepLockName = "transaction-timeout-sweep"

// Sweeper is the watchdog that moves PENDING transactions past their expiry
// to TIMEOUT. It runs outside the request path and takes the distributed
// lock so only one switch instance sweeps at a time.
type Sweeper struct {
	locks    repo.Locks
	txns     repo.Transactions
	interval time.Duration
	ownerID  string
	log      *slog.Logger
}

func NewSweeper(locks repo.Locks, txns repo.Transactions, interval time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		locks:    locks,
		txns:     txns,
		interval: interval,
		ownerID:  uuid.NewString(),
		log:      log,
	}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	acquired, err := s.locks.TryAcquire(ctx, sweepLockName, s.ownerID, s.interval*2)
	if err != nil {
		s.log.Warn("sweep lock acquire failed", "err", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := s.locks.Release(ctx, sweepLockName, s.ownerID); err != nil {
			s.log.Warn("sweep lock release failed", "err", err)
		}
	}()

	n, err := s.txns.ExpirePending(ctx, time.Now())
	if err != nil {
		s.log.Error("expire pending transactions failed", "err", err)
		return
	}
	if n > 0 {
		metrics.TransactionsTotal.WithLabelValues(string(models.StatusTimeout)).Add(float64(n))
		s.log.Info("expired pending transactions", "count", n)
	}
}
