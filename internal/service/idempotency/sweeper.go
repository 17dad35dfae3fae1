package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultSweepInterval  = 10 * time.Minute
	defaultSweepBatchSize = 500
)

// Sweeper периодически удаляет ключи с истёкшим TTL.
type Sweeper struct {
	repo      domain.IdempotencyRepository
	interval  time.Duration
	batchSize int
	logger    *log.Entry
	metrics   *metrics.WorkerMetrics
	now       func() time.Time
}

// NewSweeper создаёт воркер очистки. Нулевые interval и batchSize заменяются значениями по умолчанию.
func NewSweeper(repo domain.IdempotencyRepository, interval time.Duration, batchSize int, logger *log.Entry, m *metrics.WorkerMetrics) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-sweeper")
	}
	return &Sweeper{
		repo:      repo,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// Run чистит ключи сразу и затем раз в interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
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
	deleted, err := s.Sweep(ctx, s.now().UTC())
	if errors.Is(err, context.Canceled) {
		return
	}
	s.metrics.RecordIdempotencyCleanup(deleted, err)
	if err != nil {
		s.logger.WithError(err).Warn("idempotency sweep failed")
		return
	}
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
}

// Sweep удаляет все ключи с ttl <= before порциями batchSize и возвращает их число.
func (s *Sweeper) Sweep(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := s.repo.DeleteExpired(ctx, before, s.batchSize)
		if err != nil {
			return total, err
		}
		total += deleted
		if deleted < s.batchSize {
			return total, nil
		}
	}
}
