package services

import (
	"context"
	"time"

	"storefront-backend/internal/logging"
)

const sweepBatchSize = 100

// SessionExpirer closes payment sessions whose deadline passed.
type SessionExpirer interface {
	ExpireSessions(ctx context.Context, limit int) (int, error)
}

// SchedulerService runs the payment timeout sweep on a ticker
type SchedulerService struct {
	expirer  SessionExpirer
	ticker   *time.Ticker
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(expirer SessionExpirer) *SchedulerService {
	return &SchedulerService{
		expirer:  expirer,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the scheduler with a specified interval
func (s *SchedulerService) Start(interval time.Duration) {
	s.ticker = time.NewTicker(interval)
	log := logging.With("scheduler")
	log.Info().Dur("interval", interval).Msg("Scheduler started")

	go func() {
		defer close(s.doneChan)
		for {
			select {
			case <-s.ticker.C:
				s.RunOnce(context.Background())
			case <-s.stopChan:
				log.Info().Msg("Scheduler stopped")
				return
			}
		}
	}()
}

// Stop stops the scheduler and waits for an in-flight sweep to finish
func (s *SchedulerService) Stop() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stopChan)
	<-s.doneChan
}

// RunOnce sweeps expired payment sessions until none remain.
func (s *SchedulerService) RunOnce(ctx context.Context) int {
	ctx = logging.ContextWithRequestID(ctx, logging.NewRequestID())
	log := logging.Ctx(ctx)

	total := 0
	for {
		n, err := s.expirer.ExpireSessions(ctx, sweepBatchSize)
		if err != nil {
			log.Error().Err(err).Msg("Payment sweep failed")
			return total
		}
		total += n
		if n < sweepBatchSize {
			break
		}
	}
	if total > 0 {
		log.Info().Int("abandoned", total).Msg("Expired payment sessions abandoned")
	}
	return total
}
