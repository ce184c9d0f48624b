package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goclockin/attendance"
	"goclockin/factorial"
	"goclockin/internal/timeutil"
	"goclockin/reconcile"
)

var monday = time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)

type fakeHandler struct {
	mu       sync.Mutex
	requests []attendance.Request
	errs     []error
}

func (h *fakeHandler) HandleAction(_ context.Context, req attendance.Request) attendance.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	var err error
	if len(h.errs) > 0 {
		err = h.errs[0]
		h.errs = h.errs[1:]
	}
	return attendance.Outcome{Request: req, Decision: reconcile.Decision{Kind: reconcile.Create, At: req.Action.At}, Err: err}
}

func (h *fakeHandler) Requests() []attendance.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]attendance.Request(nil), h.requests...)
}

func startDispatcher(t *testing.T, handler Handler, clock timeutil.Clock, mutate func(*Config)) *Dispatcher {
	t.Helper()
	cfg := Config{Handler: handler, Clock: clock, RetryAttempts: 2, RetryDelay: time.Minute}
	if mutate != nil {
		mutate(&cfg)
	}
	dispatcher, err := NewDispatcher(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = dispatcher.Run(ctx)
	}()
	t.Cleanup(func() {
		dispatcher.Close()
		cancel()
		<-done
	})
	return dispatcher
}

func transient() error {
	return fmt.Errorf("%w: connection reset", factorial.ErrTransport)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	kind, err := ParseKind(" Manual-In ")
	require.NoError(t, err)
	assert.Equal(t, KindManualIn, kind)

	_, err = ParseKind("reboot")
	assert.Error(t, err)
}

func TestEventRequestMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind   Kind
		action reconcile.ActionKind
		source string
		manual bool
	}{
		{KindLogin, reconcile.ClockIn, attendance.SourceLogin, false},
		{KindWake, reconcile.ClockIn, attendance.SourceWake, false},
		{KindSleep, reconcile.ClockOut, attendance.SourceSleep, false},
		{KindLogout, reconcile.ClockOut, attendance.SourceLogout, false},
		{KindManualIn, reconcile.ClockIn, attendance.SourceManual, true},
		{KindManualOut, reconcile.ClockOut, attendance.SourceManual, true},
	}
	for _, tc := range cases {
		req := Event{Kind: tc.kind, At: monday}.Request()
		assert.Equal(t, tc.action, req.Action.Kind, tc.kind)
		assert.Equal(t, tc.source, req.Source, tc.kind)
		assert.Equal(t, tc.manual, req.Manual, tc.kind)
		assert.True(t, req.Action.At.Equal(monday))
	}

	shutdown := Event{Kind: KindLogout, At: monday, Origin: OriginShutdown}.Request()
	assert.Equal(t, attendance.SourceShutdown, shutdown.Source)
	assert.Equal(t, reconcile.ClockOut, shutdown.Action.Kind)
}

func TestDispatcher_HandlesEventsInOrder(t *testing.T) {
	t.Parallel()

	handler := &fakeHandler{}
	var observed []Kind
	var mu sync.Mutex
	dispatcher := startDispatcher(t, handler, timeutil.NewFake(monday), func(cfg *Config) {
		cfg.OnOutcome = func(ev Event, _ attendance.Outcome) {
			mu.Lock()
			observed = append(observed, ev.Kind)
			mu.Unlock()
		}
	})

	require.NoError(t, dispatcher.Submit(Event{Kind: KindLogin, At: monday}))
	require.NoError(t, dispatcher.Submit(Event{Kind: KindSleep, At: monday.Add(time.Hour)}))
	outcome, err := dispatcher.SubmitWait(context.Background(), Event{Kind: KindWake, At: monday.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, attendance.SourceWake, outcome.Request.Source)

	requests := handler.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, attendance.SourceLogin, requests[0].Source)
	assert.Equal(t, attendance.SourceSleep, requests[1].Source)
	assert.Equal(t, attendance.SourceWake, requests[2].Source)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Kind{KindLogin, KindSleep, KindWake}, observed)
}

func TestDispatcher_RetriesTransientFailureWithOriginalTime(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewFake(monday)
	handler := &fakeHandler{errs: []error{transient()}}
	dispatcher := startDispatcher(t, handler, clock, nil)

	outcome, err := dispatcher.SubmitWait(context.Background(), Event{Kind: KindLogin, At: monday})
	require.NoError(t, err)
	require.True(t, outcome.Retryable())

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(handler.Requests()) == 2 }, time.Second, 5*time.Millisecond)

	requests := handler.Requests()
	assert.True(t, requests[1].Action.At.Equal(monday))
}

func TestDispatcher_GivesUpAfterRetryAttempts(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewFake(monday)
	handler := &fakeHandler{errs: []error{transient(), transient()}}
	dispatcher := startDispatcher(t, handler, clock, func(cfg *Config) { cfg.RetryAttempts = 1 })

	_, err := dispatcher.SubmitWait(context.Background(), Event{Kind: KindLogin, At: monday})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(handler.Requests()) == 2 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Hour)
	_, err = dispatcher.SubmitWait(context.Background(), Event{Kind: KindManualIn, At: monday})
	require.NoError(t, err)

	assert.Len(t, handler.Requests(), 3)
}

func TestDispatcher_DropsRetrySupersededByNewerEvent(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewFake(monday)
	handler := &fakeHandler{errs: []error{transient()}}
	dispatcher := startDispatcher(t, handler, clock, nil)

	_, err := dispatcher.SubmitWait(context.Background(), Event{Kind: KindSleep, At: monday})
	require.NoError(t, err)
	_, err = dispatcher.SubmitWait(context.Background(), Event{Kind: KindWake, At: monday.Add(time.Second)})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = dispatcher.SubmitWait(context.Background(), Event{Kind: KindManualOut, At: monday.Add(2 * time.Minute)})
	require.NoError(t, err)

	requests := handler.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, attendance.SourceSleep, requests[0].Source)
	assert.Equal(t, attendance.SourceWake, requests[1].Source)
	assert.Equal(t, attendance.SourceManual, requests[2].Source)
}

func TestDispatcher_SubmitRejectsWhenFullOrStopped(t *testing.T) {
	t.Parallel()

	dispatcher, err := NewDispatcher(Config{Handler: &fakeHandler{}, QueueSize: 1})
	require.NoError(t, err)

	require.NoError(t, dispatcher.Submit(Event{Kind: KindLogin, At: monday}))
	assert.ErrorIs(t, dispatcher.Submit(Event{Kind: KindWake, At: monday}), ErrQueueFull)

	dispatcher.Close()
	assert.ErrorIs(t, dispatcher.Submit(Event{Kind: KindWake, At: monday}), ErrStopped)
	require.NoError(t, dispatcher.Run(context.Background()))
}

func TestDispatcher_CloseDrainsQueuedEvents(t *testing.T) {
	t.Parallel()

	handler := &fakeHandler{}
	dispatcher, err := NewDispatcher(Config{Handler: handler})
	require.NoError(t, err)

	require.NoError(t, dispatcher.Submit(Event{Kind: KindLogout, At: monday}))
	dispatcher.Close()
	require.NoError(t, dispatcher.Run(context.Background()))

	require.Len(t, handler.Requests(), 1)
	assert.Equal(t, attendance.SourceLogout, handler.Requests()[0].Source)
}

func TestDispatcher_EveryRunsTasksOnInterval(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewFake(monday)
	dispatcher := startDispatcher(t, &fakeHandler{}, clock, nil)

	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Every(ctx, time.Minute, func(context.Context) { runs.Add(1) })

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestNewDispatcher_RequiresHandler(t *testing.T) {
	t.Parallel()

	_, err := NewDispatcher(Config{})
	assert.Error(t, err)
}

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) submit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestStartupSource_EmitsLoginAfterDelay(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewFake(monday)
	events := &collector{}
	source := &StartupSource{Clock: clock, Delay: 3 * time.Second}
	require.NoError(t, source.Start(context.Background(), events.submit))

	clock.Advance(2 * time.Second)
	assert.Empty(t, events.Events())

	clock.Advance(time.Second)
	got := events.Events()
	require.Len(t, got, 1)
	assert.Equal(t, KindLogin, got[0].Kind)
	assert.True(t, got[0].At.Equal(monday))
}

func TestStartupSource_CancelledBeforeDelay(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewFake(monday)
	events := &collector{}
	ctx, cancel := context.WithCancel(context.Background())
	source := &StartupSource{Clock: clock, Delay: 3 * time.Second}
	require.NoError(t, source.Start(ctx, events.submit))

	cancel()
	clock.Advance(time.Minute)
	assert.Empty(t, events.Events())
}

func TestHeartbeatSource_DetectsSleepGap(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewFake(monday)
	events := &collector{}
	source := &HeartbeatSource{Clock: clock, Interval: 15 * time.Second, Gap: 2 * time.Minute}
	require.NoError(t, source.Start(context.Background(), events.submit))

	clock.Advance(15 * time.Second)
	clock.Advance(15 * time.Second)
	assert.Empty(t, events.Events())

	lastTick := clock.Now()
	clock.Advance(45 * time.Minute)

	got := events.Events()
	require.Len(t, got, 2)
	assert.Equal(t, KindSleep, got[0].Kind)
	assert.True(t, got[0].At.Equal(lastTick))
	assert.Equal(t, KindWake, got[1].Kind)
	assert.True(t, got[1].At.Equal(lastTick.Add(45*time.Minute)))

	clock.Advance(15 * time.Second)
	assert.Len(t, events.Events(), 2)
}

func TestHeartbeatSource_RejectsGapNotAboveInterval(t *testing.T) {
	t.Parallel()

	source := &HeartbeatSource{Clock: timeutil.NewFake(monday), Interval: time.Minute, Gap: time.Minute}
	err := source.Start(context.Background(), func(Event) {})
	assert.ErrorIs(t, err, ErrSystemEvent)
}

type brokenSource struct{}

func (brokenSource) Name() string { return "broken" }

func (brokenSource) Start(context.Context, func(Event)) error {
	return errors.New("no session bus")
}

func TestStartSources_ContinuesWithoutFailedSources(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewFake(monday)
	events := &collector{}
	failed := StartSources(context.Background(), []Source{
		brokenSource{},
		&StartupSource{Clock: clock},
	}, events.submit, nil)

	assert.Equal(t, []string{"broken"}, failed)
	clock.Advance(0)
	assert.Len(t, events.Events(), 1)
}
