package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"goclockin/internal/timeutil"
)

// Source produces lifecycle events until its context ends.
type Source interface {
	Name() string
	Start(ctx context.Context, submit func(Event)) error
}

// StartSources starts every source and returns the names of those that
// failed. A failed source is logged and skipped.
func StartSources(ctx context.Context, sources []Source, submit func(Event), logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	failed := make([]string, 0)
	for _, source := range sources {
		if err := source.Start(ctx, submit); err != nil {
			if !errors.Is(err, ErrSystemEvent) {
				err = fmt.Errorf("%w: %s: %v", ErrSystemEvent, source.Name(), err)
			}
			logger.Warn("event source disabled, manual actions only", "source", source.Name(), "error", err)
			failed = append(failed, source.Name())
			continue
		}
		logger.Debug("event source started", "source", source.Name())
	}
	return failed
}

// StartupSource emits a single login event once Delay has passed after
// Start. The event is stamped with the start time.
type StartupSource struct {
	Clock timeutil.Clock
	Delay time.Duration
}

func (s *StartupSource) Name() string { return "startup" }

func (s *StartupSource) Start(ctx context.Context, submit func(Event)) error {
	clock := s.Clock
	if clock == nil {
		clock = timeutil.Real()
	}
	at := clock.Now()
	timer := clock.AfterFunc(max(s.Delay, 0), func() {
		if ctx.Err() != nil {
			return
		}
		submit(Event{Kind: KindLogin, At: at, Origin: s.Name()})
	})
	context.AfterFunc(ctx, func() { timer.Stop() })
	return nil
}

// HeartbeatSource detects suspend and resume by watching for gaps in the
// wall clock between ticks. A gap longer than Gap emits a sleep event at the
// last tick before it and a wake event at the first tick after it.
type HeartbeatSource struct {
	Clock    timeutil.Clock
	Interval time.Duration
	Gap      time.Duration

	mu    sync.Mutex
	last  time.Time
	timer timeutil.Stopper
}

func (s *HeartbeatSource) Name() string { return "heartbeat" }

func (s *HeartbeatSource) Start(ctx context.Context, submit func(Event)) error {
	if s.Interval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive", ErrSystemEvent)
	}
	if s.Gap <= s.Interval {
		return fmt.Errorf("%w: sleep gap must exceed the heartbeat interval", ErrSystemEvent)
	}
	if s.Clock == nil {
		s.Clock = timeutil.Real()
	}

	s.mu.Lock()
	s.last = s.wallNow()
	s.timer = s.Clock.AfterFunc(s.Interval, func() { s.tick(ctx, submit) })
	s.mu.Unlock()

	context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.timer != nil {
			s.timer.Stop()
		}
	})
	return nil
}

// wallNow strips the monotonic reading so time spent suspended counts.
func (s *HeartbeatSource) wallNow() time.Time {
	return s.Clock.Now().Round(0)
}

func (s *HeartbeatSource) tick(ctx context.Context, submit func(Event)) {
	if ctx.Err() != nil {
		return
	}
	now := s.wallNow()

	s.mu.Lock()
	last := s.last
	s.last = now
	s.timer = s.Clock.AfterFunc(s.Interval, func() { s.tick(ctx, submit) })
	s.mu.Unlock()

	if now.Sub(last) <= s.Gap {
		return
	}
	submit(Event{Kind: KindSleep, At: last, Origin: s.Name()})
	submit(Event{Kind: KindWake, At: now, Origin: s.Name()})
}
