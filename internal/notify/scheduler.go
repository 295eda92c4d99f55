package notify

// scheduler.go runs the daily digest and pending reminders on cron
// schedules. A failed run is logged and the next run proceeds as scheduled.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleOff disables a schedule.
const ScheduleOff = "off"

// Scheduler owns the cron runner for scheduled notifications.
type Scheduler struct {
	cron    *cron.Cron
	digests *Digests
	entries int
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// NewScheduler registers the digest and reminder jobs. Expressions use the
// standard five fields and are evaluated in loc. ScheduleOff skips a job.
func NewScheduler(digests *Digests, digestSpec, reminderSpec string, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	logger := cronLogger{log: slog.Default().With("component", "scheduler")}

	s := &Scheduler{
		digests: digests,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(
				cron.SkipIfStillRunning(logger),
				cron.Recover(logger),
			),
		),
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}{
		{"daily digest", digestSpec, digests.SendDigest},
		{"pending reminders", reminderSpec, digests.SendReminders},
	}
	for _, j := range jobs {
		if j.spec == "" || j.spec == ScheduleOff {
			slog.Info("schedule disabled", "job", j.name)
			continue
		}
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { runJob(j.name, j.run) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
		s.entries++
		slog.Info("job scheduled", "job", j.name, "cron", j.spec, "timezone", loc.String())
	}
	return s, nil
}

func runJob(name string, run func(context.Context) (int, error)) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := run(ctx)
	if err != nil {
		slog.Error("scheduled job failed", "job", name, "error", err)
		return
	}
	slog.Info("scheduled job completed", "job", name, "queued", n, "duration_ms", time.Since(start).Milliseconds())
}

// Entries returns the number of active schedules.
func (s *Scheduler) Entries() int {
	return s.entries
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for a running job to finish, or for ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
