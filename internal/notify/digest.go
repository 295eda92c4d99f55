package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/quizdesk/internal/core"
	"github.com/JonMunkholm/quizdesk/internal/logging"
)

// PendingReminder is a user with released questions they have not answered.
type PendingReminder struct {
	Recipient core.Recipient
	Pending   int
}

// ScheduleStore supplies the data for digests and reminders.
type ScheduleStore interface {
	QuestionsReleasedOn(ctx context.Context, day time.Time) ([]core.Question, error)
	DigestRecipients(ctx context.Context) ([]core.Recipient, error)
	PendingReminders(ctx context.Context, asOf time.Time) ([]PendingReminder, error)
}

// Digests builds the scheduled notifications.
type Digests struct {
	store      ScheduleStore
	dispatcher *Dispatcher
	loc        *time.Location
	link       string
	now        func() time.Time
}

// NewDigests returns a digest builder; loc decides which calendar day is
// today.
func NewDigests(store ScheduleStore, dispatcher *Dispatcher, loc *time.Location, link string) *Digests {
	if loc == nil {
		loc = time.UTC
	}
	return &Digests{store: store, dispatcher: dispatcher, loc: loc, link: link, now: time.Now}
}

// today returns midnight of the current day in d.loc, expressed in UTC so it
// compares with DATE columns.
func (d *Digests) today() time.Time {
	y, m, day := d.now().In(d.loc).Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// SendDigest queues one message per user listing the questions released
// today and returns the number queued. Nothing is sent when no question is
// released today.
func (d *Digests) SendDigest(ctx context.Context) (int, error) {
	day := d.today()

	questions, err := d.store.QuestionsReleasedOn(ctx, day)
	if err != nil {
		return 0, fmt.Errorf("questions released on %s: %w", day.Format(core.DateLayout), err)
	}
	if len(questions) == 0 {
		logging.FromContext(ctx).Info("no questions released today; digest skipped", "date", day.Format(core.DateLayout))
		return 0, nil
	}

	recipients, err := d.store.DigestRecipients(ctx)
	if err != nil {
		return 0, fmt.Errorf("digest recipients: %w", err)
	}

	ns := make([]Notification, 0, len(recipients))
	for _, r := range recipients {
		ns = append(ns, Notification{
			Recipient: r,
			Template:  TemplateDailyDigest,
			Data:      DigestData{Recipient: r, Questions: questions, Date: day, Link: d.link},
		})
	}
	d.dispatcher.Notify(ctx, ns)
	return len(ns), nil
}

// SendReminders queues a reminder for every user with pending questions and
// returns the number queued.
func (d *Digests) SendReminders(ctx context.Context) (int, error) {
	pending, err := d.store.PendingReminders(ctx, d.today())
	if err != nil {
		return 0, fmt.Errorf("pending reminders: %w", err)
	}

	ns := make([]Notification, 0, len(pending))
	for _, p := range pending {
		if p.Pending <= 0 {
			continue
		}
		ns = append(ns, Notification{
			Recipient: p.Recipient,
			Template:  TemplateReminder,
			Data:      ReminderData{Recipient: p.Recipient, Pending: p.Pending, Link: d.link},
		})
	}
	d.dispatcher.Notify(ctx, ns)
	return len(ns), nil
}
