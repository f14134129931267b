package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler drives periodic sync cycles: every interval it lists the
// active mailboxes and hands each to the worker pool. A mailbox whose
// previous sync is still running is skipped, so at most one sync runs
// per mailbox at any time.
type Scheduler struct {
	store       Store
	coordinator *Coordinator
	interval    time.Duration
	workers     int
	logger      zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewScheduler creates a scheduler running syncs on a pool of the given
// size at the given interval.
func NewScheduler(store Store, coordinator *Coordinator, interval time.Duration, workers int, logger zerolog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		store:       store,
		coordinator: coordinator,
		interval:    interval,
		workers:     workers,
		logger:      logger.With().Str("component", "scheduler").Logger(),
		inFlight:    make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled, executing one cycle immediately
// and then one per interval. In-flight syncs are waited for on return.
func (s *Scheduler) Run(ctx context.Context) {
	jobs := make(chan string)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for mailboxID := range jobs {
				s.runOne(ctx, mailboxID)
			}
		}()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.interval).
		Int("workers", s.workers).
		Msg("Scheduler started")

	s.cycle(ctx, jobs)

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			s.logger.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
			s.cycle(ctx, jobs)
		}
	}
}

// cycle enqueues every active mailbox not already being synced.
func (s *Scheduler) cycle(ctx context.Context, jobs chan<- string) {
	mailboxes, err := s.store.ListActiveMailboxes(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list active mailboxes")
		return
	}

	s.logger.Debug().Int("mailboxes", len(mailboxes)).Msg("Starting sync cycle")

	for _, mailbox := range mailboxes {
		if !s.tryAcquire(mailbox.ID) {
			s.logger.Debug().
				Str("mailbox_id", mailbox.ID).
				Msg("Previous sync still running, skipping")
			continue
		}

		select {
		case jobs <- mailbox.ID:
		case <-ctx.Done():
			s.release(mailbox.ID)
			return
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, mailboxID string) {
	defer s.release(mailboxID)

	if err := s.coordinator.Sync(ctx, mailboxID); err != nil {
		s.logger.Error().
			Err(err).
			Str("mailbox_id", mailboxID).
			Msg("Sync failed")
	}
}

func (s *Scheduler) tryAcquire(mailboxID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[mailboxID] {
		return false
	}
	s.inFlight[mailboxID] = true
	return true
}

func (s *Scheduler) release(mailboxID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, mailboxID)
}
