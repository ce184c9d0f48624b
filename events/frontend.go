package events

import (
	"context"
	"time"

	"goclockin/attendance"
	"goclockin/internal/timeutil"
	"goclockin/reconcile"
)

// Frontend routes user actions through the dispatcher so they never overlap
// with automatic ones.
type Frontend struct {
	dispatcher *Dispatcher
	service    *attendance.Service
	clock      timeutil.Clock
}

func NewFrontend(dispatcher *Dispatcher, service *attendance.Service, clock timeutil.Clock) *Frontend {
	if clock == nil {
		clock = timeutil.Real()
	}
	return &Frontend{dispatcher: dispatcher, service: service, clock: clock}
}

// Post submits an event of the given kind stamped with the current time and
// waits for its outcome.
func (f *Frontend) Post(ctx context.Context, kind Kind, origin string) (attendance.Outcome, error) {
	return f.dispatcher.SubmitWait(ctx, Event{Kind: kind, At: f.clock.Now(), Origin: origin})
}

func (f *Frontend) Status() attendance.Status {
	return f.service.LastStatus()
}

func (f *Frontend) Refresh(ctx context.Context) (attendance.Status, error) {
	result := make(chan attendance.Status, 1)
	if err := f.dispatcher.Do(ctx, func(ctx context.Context) {
		result <- f.service.RefreshStatus(ctx)
	}); err != nil {
		return attendance.Status{}, err
	}
	return <-result, nil
}

func (f *Frontend) UpdateCredentials(ctx context.Context, email, password string) error {
	result := make(chan error, 1)
	if err := f.dispatcher.Do(ctx, func(ctx context.Context) {
		result <- f.service.RefreshCredentials(ctx, email, password)
	}); err != nil {
		return err
	}
	return <-result
}

func (f *Frontend) MonthShifts(ctx context.Context, month time.Time) ([]reconcile.Shift, error) {
	type reply struct {
		shifts []reconcile.Shift
		err    error
	}
	result := make(chan reply, 1)
	if err := f.dispatcher.Do(ctx, func(ctx context.Context) {
		shifts, err := f.service.MonthShifts(ctx, month)
		result <- reply{shifts: shifts, err: err}
	}); err != nil {
		return nil, err
	}
	r := <-result
	return r.shifts, r.err
}

func (f *Frontend) Email() string {
	return f.service.Email()
}
