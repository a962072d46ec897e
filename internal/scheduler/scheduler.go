package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/atmosync/atmosync/internal/syncer"
)

// Scheduler periodically runs an incremental sync pass.
type Scheduler struct {
	scheduler *gocron.Scheduler
	syncer    *syncer.Syncer
	interval  time.Duration
	timeout   time.Duration
}

// New creates a Scheduler driving the given syncer.
func New(s *syncer.Syncer, interval, timeout time.Duration) *Scheduler {
	sched := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: sched,
		syncer:    s,
		interval:  interval,
		timeout:   timeout,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(intervalSeconds(s.interval)).Seconds().Do(func() {
		log.Println("scheduler: running sync pass")

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		err := s.syncer.SyncAll(ctx, nil)
		switch {
		case errors.Is(err, syncer.ErrPassInProgress):
			log.Println("scheduler: previous pass still running, skipping")
		case err != nil:
			log.Printf("scheduler: sync pass failed: %v", err)
		default:
			log.Println("scheduler: sync pass completed")
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// intervalSeconds converts the configured interval to whole seconds, falling
// back to 15 minutes for non-positive values.
func intervalSeconds(d time.Duration) int {
	seconds := int(d.Seconds())
	if seconds <= 0 {
		seconds = int((15 * time.Minute).Seconds())
	}
	return seconds
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
