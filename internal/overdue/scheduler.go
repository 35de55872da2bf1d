// Package overdue periodically reminds experts about reviews past their due time.
package overdue

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Reminder sends reminders for every overdue request and reports how many
// were sent. requests.Manager satisfies it.
type Reminder interface {
	RemindOverdue(ctx context.Context) (int, error)
}

type Scheduler struct {
	Reminder Reminder
	Location *time.Location

	schedule cron.Schedule
	spec     string
	now      func() time.Time
	wait     func(ctx context.Context, d time.Duration) bool
}

// New parses a standard 5-field cron expression (minute hour day-of-month
// month day-of-week). "0 * * * *" checks hourly, "*/15 9-18 * * 1-5" every
// quarter hour during weekday working hours.
func New(schedule string, loc *time.Location, r Reminder) (*Scheduler, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, fmt.Errorf("overdue check schedule is empty")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid overdue check schedule %q: %w", schedule, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		Reminder: r,
		Location: loc,
		schedule: sched,
		spec:     schedule,
		now:      time.Now,
		wait:     sleepContext,
	}, nil
}

// Next returns the first check strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.Location))
}

// RunOnce performs a single overdue sweep.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	sent, err := s.Reminder.RemindOverdue(ctx)
	if err != nil {
		log.Printf("overdue check error: %v", err)
		return sent, err
	}
	log.Printf("overdue check complete reminders=%d", sent)
	return sent, nil
}

// Run blocks, sweeping on every scheduled tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("Overdue checks scheduled (cron: %s, tz: %s)", s.spec, s.Location)
	for {
		now := s.now().In(s.Location)
		next := s.Next(now)
		wait := next.Sub(now)
		log.Printf("Next overdue check at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		if !s.wait(ctx, wait) {
			log.Println("Overdue scheduler stopped")
			return
		}
		_, _ = s.RunOnce(ctx)
	}
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start(ctx context.Context) {
	go s.Run(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
