package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"goclockin/attendance"
	"goclockin/internal/timeutil"
)

var (
	ErrQueueFull = errors.New("event queue is full")
	ErrStopped   = errors.New("dispatcher is stopped")
)

// Handler runs one clock request to completion.
type Handler interface {
	HandleAction(ctx context.Context, req attendance.Request) attendance.Outcome
}

type Config struct {
	Handler       Handler
	Clock         timeutil.Clock
	Logger        *slog.Logger
	QueueSize     int
	RetryAttempts int
	RetryDelay    time.Duration
	// OnOutcome observes every handled event, retries included.
	OnOutcome func(Event, attendance.Outcome)
}

type job struct {
	event   *Event
	attempt int
	// seq is the fresh-event counter at the time a retry was scheduled.
	seq   uint64
	reply chan attendance.Outcome
	task  func(context.Context)
}

// Dispatcher consumes events from a single queue and handles them serially,
// so no two clock actions ever overlap.
type Dispatcher struct {
	handler       Handler
	clock         timeutil.Clock
	logger        *slog.Logger
	retryAttempts int
	retryDelay    time.Duration
	onOutcome     func(Event, attendance.Outcome)

	queue chan job

	mu      sync.Mutex
	stopped bool
	timers  map[timeutil.Stopper]struct{}
	fresh   uint64
}

func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Handler == nil {
		return nil, errors.New("handler is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 16
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Minute
	}

	return &Dispatcher{
		handler:       cfg.Handler,
		clock:         clock,
		logger:        logger,
		retryAttempts: max(cfg.RetryAttempts, 0),
		retryDelay:    delay,
		onOutcome:     cfg.OnOutcome,
		queue:         make(chan job, size),
		timers:        make(map[timeutil.Stopper]struct{}),
	}, nil
}

// Submit enqueues ev without waiting for it to be handled.
func (d *Dispatcher) Submit(ev Event) error {
	return d.enqueue(job{event: &ev})
}

// SubmitWait enqueues ev and waits for its outcome.
func (d *Dispatcher) SubmitWait(ctx context.Context, ev Event) (attendance.Outcome, error) {
	reply := make(chan attendance.Outcome, 1)
	if err := d.enqueue(job{event: &ev, reply: reply}); err != nil {
		return attendance.Outcome{}, err
	}
	select {
	case outcome := <-reply:
		return outcome, nil
	case <-ctx.Done():
		return attendance.Outcome{}, ctx.Err()
	}
}

// Do runs fn on the dispatcher goroutine between events and waits for it.
func (d *Dispatcher) Do(ctx context.Context, fn func(context.Context)) error {
	done := make(chan attendance.Outcome, 1)
	task := func(ctx context.Context) {
		fn(ctx)
		done <- attendance.Outcome{}
	}
	if err := d.enqueue(job{task: task}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) enqueue(j job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and cancels pending retries. Run returns once
// the events already queued are handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	for timer := range d.timers {
		timer.Stop()
	}
	d.timers = map[timeutil.Stopper]struct{}{}
	close(d.queue)
}

// Run handles queued events until Close drains the queue or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok := <-d.queue:
			if !ok {
				return nil
			}
			d.handle(ctx, j)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, j job) {
	if j.task != nil {
		j.task(ctx)
		return
	}

	ev := *j.event
	logger := d.logger.With("event", string(ev.Kind), "origin", ev.Origin, "attempt", j.attempt+1)

	d.mu.Lock()
	if j.attempt == 0 {
		d.fresh++
	} else if d.fresh != j.seq {
		d.mu.Unlock()
		logger.Info("dropping retry superseded by a newer event")
		return
	}
	seq := d.fresh
	d.mu.Unlock()

	outcome := d.safeHandle(ctx, ev, logger)
	if j.reply != nil {
		j.reply <- outcome
	}
	if d.onOutcome != nil {
		d.onOutcome(ev, outcome)
	}

	if !outcome.Retryable() {
		return
	}
	if j.attempt >= d.retryAttempts {
		logger.Error("giving up after transient failures", "error", outcome.Err)
		return
	}
	d.scheduleRetry(job{event: j.event, attempt: j.attempt + 1, seq: seq}, logger)
}

// safeHandle keeps a panicking handler from taking the daemon down.
func (d *Dispatcher) safeHandle(ctx context.Context, ev Event, logger *slog.Logger) (outcome attendance.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked", "panic", r)
			outcome = attendance.Outcome{Request: ev.Request(), Err: errors.New("internal error while handling event")}
		}
	}()
	logger.Debug("handling event", "at", ev.At.Format(time.RFC3339))
	return d.handler.HandleAction(ctx, ev.Request())
}

func (d *Dispatcher) scheduleRetry(j job, logger *slog.Logger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	logger.Warn("transient failure, retrying", "in", d.retryDelay.String())

	var timer timeutil.Stopper
	timer = d.clock.AfterFunc(d.retryDelay, func() {
		d.mu.Lock()
		delete(d.timers, timer)
		d.mu.Unlock()
		if err := d.enqueue(j); err != nil {
			logger.Warn("retry dropped", "error", err)
		}
	})
	d.timers[timer] = struct{}{}
}

// Every runs fn on the dispatcher goroutine every interval until ctx ends.
func (d *Dispatcher) Every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	var tick func()
	tick = func() {
		if ctx.Err() != nil {
			return
		}
		if err := d.enqueue(job{task: fn}); err != nil && !errors.Is(err, ErrQueueFull) {
			return
		}
		d.clock.AfterFunc(interval, tick)
	}
	d.clock.AfterFunc(interval, tick)
}
