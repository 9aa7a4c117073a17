// Package alarm schedules the one-shot timer that announces a review is
// due. Exactly one alarm exists at a time: arming replaces whatever was
// pending, so stale timers from an earlier redemption can never fire.
package alarm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/blobsey/flashtoll/internal/ledger"
)

// Tag names the single review alarm inside the scheduler.
const Tag = "showFlashcardAlarm"

// fireTimeout bounds the work done by one alarm firing.
const fireTimeout = 10 * time.Second

// FireFunc runs when the alarm fires, typically broadcasting the
// show-flashcard event to every tab.
type FireFunc func(ctx context.Context)

// Scheduler owns the review alarm.
type Scheduler struct {
	log    *slog.Logger
	ledger *ledger.Ledger
	sched  *gocron.Scheduler
	fire   FireFunc
	now    func() time.Time
}

// New creates a stopped scheduler. fire runs on the scheduler's
// goroutine each time the alarm goes off.
func New(led *ledger.Ledger, fire FireFunc, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		log:    log,
		ledger: led,
		sched:  gocron.NewScheduler(time.UTC),
		fire:   fire,
		now:    time.Now,
	}
}

// Start begins running scheduled jobs without blocking.
func (s *Scheduler) Start() {
	s.sched.StartAsync()
}

// Stop terminates the scheduler and any pending alarm.
func (s *Scheduler) Stop() {
	s.sched.Stop()
}

// Arm schedules the alarm for at, replacing any pending alarm. Times in
// the past fire almost immediately.
func (s *Scheduler) Arm(at time.Time) error {
	// Removing an absent tag is fine; this is the replace half of the
	// remove-then-create pair.
	_ = s.sched.RemoveByTag(Tag)

	now := s.now()
	if !at.After(now) {
		at = now.Add(10 * time.Millisecond)
	}

	_, err := s.sched.Every(1).Day().StartAt(at).LimitRunsTo(1).Tag(Tag).Do(s.run)
	if err != nil {
		return fmt.Errorf("arm alarm: %w", err)
	}
	s.log.Debug("alarm armed", "at", at)
	return nil
}

// Rearm restores the alarm from the persisted next review time. Called
// on startup so a restart never loses a pending review.
func (s *Scheduler) Rearm(ctx context.Context) error {
	next, err := s.ledger.NextFlashcardTime(ctx)
	if err != nil {
		return fmt.Errorf("rearm alarm: %w", err)
	}
	return s.Arm(next)
}

// NextFire returns the pending alarm's fire time, or false when no
// alarm is armed.
func (s *Scheduler) NextFire() (time.Time, bool) {
	jobs, err := s.sched.FindJobsByTag(Tag)
	if err != nil || len(jobs) == 0 {
		return time.Time{}, false
	}
	return jobs[0].NextRun(), true
}

func (s *Scheduler) run() {
	if s.fire == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()
	s.log.Debug("alarm fired")
	s.fire(ctx)
}
