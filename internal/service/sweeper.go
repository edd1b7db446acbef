package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/lock"
	"github.com/listings/media-pipeline/internal/repository"
)

const sweeperLockName = "orphan-sweeper"

// Compensator replays the delete an orphan record describes.
type Compensator interface {
	Compensate(ctx context.Context, rec domain.OrphanRecord) error
}

// OrphanSweeper retries compensating deletes that failed earlier.
type OrphanSweeper struct {
	orphans     repository.OrphanRepository
	compensator Compensator
	locker      lock.Locker
	interval    time.Duration
	batchSize   int
	log         logrus.FieldLogger
}

func NewOrphanSweeper(orphans repository.OrphanRepository, compensator Compensator, locker lock.Locker, interval time.Duration, batchSize int, log logrus.FieldLogger) *OrphanSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &OrphanSweeper{
		orphans:     orphans,
		compensator: compensator,
		locker:      locker,
		interval:    interval,
		batchSize:   batchSize,
		log:         log.WithField("component", "orphan-sweeper"),
	}
}

// Run sweeps every interval until ctx is done.
func (s *OrphanSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.WithError(err).Warn("sweep failed")
			}
		}
	}
}

// SweepOnce replays one batch of pending records and returns how many were
// resolved. It does nothing while another instance holds the lock.
func (s *OrphanSweeper) SweepOnce(ctx context.Context) (int, error) {
	release, err := s.locker.Acquire(ctx, sweeperLockName, s.interval)
	if errors.Is(err, lock.ErrNotAcquired) {
		s.log.Debug("sweep skipped, lock held elsewhere")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.WithError(err).Warn("failed to release sweeper lock")
		}
	}()

	records, err := s.orphans.ListPending(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		log := s.log.WithFields(logrus.Fields{"orphan": rec.ID, "prefix": rec.Prefix, "keys": rec.Keys, "attempts": rec.Attempts})

		if err := s.compensator.Compensate(ctx, rec); err != nil {
			log.WithError(err).Warn("orphan cleanup failed")
			if markErr := s.orphans.MarkAttempt(ctx, rec.ID, err.Error()); markErr != nil {
				log.WithError(markErr).Error("failed to record sweep attempt")
			}
			continue
		}
		if err := s.orphans.MarkResolved(ctx, rec.ID); err != nil {
			log.WithError(err).Error("failed to mark orphan resolved")
			continue
		}
		resolved++
		log.Info("orphan cleaned up")
	}
	return resolved, nil
}
