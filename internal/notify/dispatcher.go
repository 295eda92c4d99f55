// Package notify delivers e-mail notifications about questions: on import,
// as a daily digest and as pending-answer reminders.
//
// All delivery goes through a Dispatcher, a fixed pool of workers reading a
// bounded queue. Callers hand over work and return at once; failures are
// logged and counted, never retried and never reported back.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/quizdesk/internal/core"
	"github.com/JonMunkholm/quizdesk/internal/logging"
	"github.com/JonMunkholm/quizdesk/internal/mail"
)

// ErrClosed is logged when work arrives after Close.
var ErrClosed = errors.New("dispatcher closed")

// Default dispatcher settings.
const (
	DefaultWorkers     = 4
	DefaultQueueSize   = 256
	DefaultSendTimeout = 20 * time.Second
)

// Notification is one message for one recipient.
type Notification struct {
	Recipient core.Recipient
	Template  string
	Data      any
}

// Options configures a Dispatcher. Zero values select the defaults.
type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
}

type job struct {
	ctx   context.Context
	n     Notification
	tally *tally
}

// tally counts the outcome of one Notify call.
type tally struct {
	template  string
	remaining atomic.Int64
	sent      atomic.Int64
	failed    atomic.Int64
	start     time.Time
}

// Dispatcher sends notifications on a bounded worker pool.
type Dispatcher struct {
	transport   mail.Transport
	templates   *Templates
	sendTimeout time.Duration
	jobs        chan job

	workers sync.WaitGroup
	feeders sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	sent   atomic.Int64
	failed atomic.Int64

	pendingMu sync.Mutex
	pending   int64
	idle      chan struct{}
}

// NewDispatcher starts the worker pool.
func NewDispatcher(transport mail.Transport, templates *Templates, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}

	idle := make(chan struct{})
	close(idle)

	d := &Dispatcher{
		transport:   transport,
		templates:   templates,
		sendTimeout: opts.SendTimeout,
		jobs:        make(chan job, opts.QueueSize),
		idle:        idle,
	}
	for i := 0; i < opts.Workers; i++ {
		d.workers.Add(1)
		go d.work()
	}
	return d
}

// Notify queues ns and returns without waiting for the queue or for any
// send. ctx supplies request-scoped values for logging only; cancelling it
// does not stop delivery.
func (d *Dispatcher) Notify(ctx context.Context, ns []Notification) {
	if len(ns) == 0 {
		return
	}

	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		logging.FromContext(ctx).Warn("notifications dropped", "error", ErrClosed, "count", len(ns))
		d.failed.Add(int64(len(ns)))
		return
	}

	t := d.track(ns)
	ctx = context.WithoutCancel(ctx)
	d.feeders.Add(1)
	go func() {
		defer d.feeders.Done()
		d.feed(ctx, ns, t)
	}()
}

// NotifyLater runs build on a background goroutine and queues the
// notifications it returns. build receives ctx without its cancellation, so
// work the caller has already finished still gets announced. Wait and Close
// account for build as pending work.
func (d *Dispatcher) NotifyLater(ctx context.Context, build func(context.Context) []Notification) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		logging.FromContext(ctx).Warn("notifications dropped", "error", ErrClosed)
		return
	}

	d.addPending(1)
	ctx = context.WithoutCancel(ctx)
	d.feeders.Add(1)
	go func() {
		defer d.feeders.Done()
		defer d.donePending()
		if ns := build(ctx); len(ns) > 0 {
			d.feed(ctx, ns, d.track(ns))
		}
	}()
}

func (d *Dispatcher) track(ns []Notification) *tally {
	t := &tally{template: ns[0].Template, start: time.Now()}
	t.remaining.Store(int64(len(ns)))
	d.addPending(int64(len(ns)))
	return t
}

func (d *Dispatcher) feed(ctx context.Context, ns []Notification, t *tally) {
	for _, n := range ns {
		d.jobs <- job{ctx: ctx, n: n, tally: t}
	}
}

func (d *Dispatcher) work() {
	defer d.workers.Done()
	for j := range d.jobs {
		d.process(j)
	}
}

func (d *Dispatcher) process(j job) {
	log := logging.FromContext(j.ctx)

	err := d.deliver(j)
	if err != nil {
		d.failed.Add(1)
		j.tally.failed.Add(1)
		log.Warn("notification failed",
			"error", err,
			"code", core.MapError(err).Code,
			"template", j.n.Template,
			"user_id", j.n.Recipient.UserID)
	} else {
		d.sent.Add(1)
		j.tally.sent.Add(1)
	}

	if j.tally.remaining.Add(-1) == 0 {
		log.Info("notifications delivered",
			"template", j.tally.template,
			"sent", j.tally.sent.Load(),
			"failed", j.tally.failed.Load(),
			"duration", time.Since(j.tally.start))
	}
	d.donePending()
}

func (d *Dispatcher) deliver(j job) error {
	addr, err := mail.ParseAddress(j.n.Recipient.Email)
	if err != nil {
		return &mail.TransportError{Transport: "dispatch", To: j.n.Recipient.Email, Err: err}
	}

	msg, err := d.templates.Render(j.n.Template, j.n.Data)
	if err != nil {
		return &mail.TransportError{Transport: "dispatch", To: addr, Err: err}
	}

	ctx, cancel := context.WithTimeout(j.ctx, d.sendTimeout)
	defer cancel()

	if err := d.transport.Send(ctx, addr, msg); err != nil {
		var terr *mail.TransportError
		if !errors.As(err, &terr) {
			err = &mail.TransportError{Transport: "unknown", To: addr, Err: err}
		}
		return err
	}
	return nil
}

func (d *Dispatcher) addPending(n int64) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	if d.pending == 0 {
		d.idle = make(chan struct{})
	}
	d.pending += n
}

func (d *Dispatcher) donePending() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.pending--
	if d.pending == 0 {
		close(d.idle)
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	d.pendingMu.Lock()
	pending := d.pending
	d.pendingMu.Unlock()
	return Stats{Sent: d.sent.Load(), Failed: d.failed.Load(), Pending: pending}
}

// Wait blocks until no notification is pending or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.pendingMu.Lock()
	idle := d.idle
	d.pendingMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for queued notifications to be
// delivered, or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return nil
	}
	d.closed = true
	d.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.feeders.Wait()
		close(d.jobs)
		d.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("notification dispatcher stopped", "sent", d.sent.Load(), "failed", d.failed.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
