package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goclockin/factorial"
	"goclockin/internal/timeutil"
	"goclockin/reconcile"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateUnconfigured State = "unconfigured"
	StateDayOff       State = "day_off"
	StateNotClockedIn State = "not_clocked_in"
	StateClockedIn    State = "clocked_in"
	StateClockedOut   State = "clocked_out"
	StateConflict     State = "conflict"
	StateUnavailable  State = "unavailable"
)

// Status is what the presentation layer shows. Since is the clock-in of the
// open shift, or the clock-out of the latest closed one.
type Status struct {
	State     State         `json:"state"`
	Email     string        `json:"email,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Since     *time.Time    `json:"since,omitempty"`
	Worked    time.Duration `json:"worked"`
	Remaining time.Duration `json:"remaining"`
	Overtime  bool          `json:"overtime"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Summary is a one-line rendering of the status.
func (s Status) Summary() string {
	switch s.State {
	case StateClockedIn:
		since := ""
		if s.Since != nil {
			since = " since " + s.Since.Format("15:04")
		}
		if s.Overtime {
			return fmt.Sprintf("Clocked in%s (overtime %s)", since, timeutil.FormatDuration(s.Remaining))
		}
		return fmt.Sprintf("Clocked in%s (%s remaining)", since, timeutil.FormatDuration(s.Remaining))
	case StateClockedOut:
		since := ""
		if s.Since != nil {
			since = " at " + s.Since.Format("15:04")
		}
		return fmt.Sprintf("Clocked out%s (worked %s today)", since, timeutil.FormatDuration(s.Worked))
	case StateNotClockedIn:
		return "Not clocked in"
	case StateDayOff:
		return "Day off: " + s.Reason
	case StateConflict:
		return "Manual action required: " + s.Reason
	case StateUnconfigured:
		return "Not configured: " + s.Reason
	case StateUnavailable:
		return "Status unavailable: " + s.Reason
	default:
		if s.Reason != "" {
			return "Disconnected: " + s.Reason
		}
		return "Disconnected"
	}
}

// LastStatus returns the most recently computed status without any remote
// call.
func (s *Service) LastStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// CurrentStatus computes the status from the remote shifts of today.
func (s *Service) CurrentStatus(ctx context.Context) Status {
	now := s.clock.Now()
	email := s.Email()

	s.mu.Lock()
	configErr := s.configErr
	s.mu.Unlock()
	if email == "" {
		return Status{State: StateUnconfigured, Reason: "no account email configured", CheckedAt: now}
	}
	if configErr != nil && !errors.Is(configErr, errNoAccount) {
		return Status{State: StateUnconfigured, Email: email, Reason: configErr.Error(), CheckedAt: now}
	}

	if err := s.ensureSession(ctx, email); err != nil {
		return s.disconnected(err)
	}

	shifts, err := s.gateway.Shifts(ctx, s.gateway.Session().EmployeeID(), now)
	if err != nil {
		err = s.gatewayErr(err)
		if errors.Is(err, factorial.ErrAuthentication) {
			return s.disconnected(err)
		}
		return Status{State: StateUnavailable, Email: email, Reason: err.Error(), CheckedAt: now}
	}
	if len(shifts) > 0 {
		return statusFromShifts(email, shifts, now, s.workdayHours)
	}

	// Recorded shifts win over the calendar, so a manual clock-in on a day
	// off still shows as clocked in.
	verdict, err := s.workingDay(ctx, email, now, false)
	switch {
	case errors.Is(err, factorial.ErrAuthentication):
		return s.disconnected(err)
	case err != nil:
		return Status{State: StateUnavailable, Email: email, Reason: err.Error(), CheckedAt: now}
	case !verdict.Working:
		return Status{State: StateDayOff, Email: email, Reason: verdict.Reason, CheckedAt: now}
	}
	return statusFromShifts(email, shifts, now, s.workdayHours)
}

// RefreshStatus recomputes and stores the status.
func (s *Service) RefreshStatus(ctx context.Context) Status {
	status := s.CurrentStatus(ctx)
	s.setStatus(status)
	return status
}

func (s *Service) setStatus(status Status) {
	s.mu.Lock()
	previous := s.last.State
	s.last = status
	s.mu.Unlock()
	if previous != status.State {
		s.logger.Info("status changed", "from", string(previous), "to", string(status.State), "reason", status.Reason)
	}
}

func (s *Service) disconnected(err error) Status {
	reason := "not logged in"
	switch {
	case errors.Is(err, ErrCredentialsRejected):
		reason = "credentials rejected, sign in again"
	case err != nil:
		reason = err.Error()
	}
	return Status{State: StateDisconnected, Email: s.Email(), Reason: reason, CheckedAt: s.clock.Now()}
}

func statusFromShifts(email string, shifts []reconcile.Shift, now time.Time, workdayHours float64) Status {
	status := Status{Email: email, CheckedAt: now}

	open := reconcile.OpenShifts(shifts)
	if len(open) > 1 {
		status.State = StateConflict
		status.Reason = fmt.Sprintf("%d open shifts recorded today", len(open))
		return status
	}

	workday := time.Duration(workdayHours * float64(time.Hour))
	for _, shift := range shifts {
		if shift.Open() {
			continue
		}
		status.Worked += shift.ClockOut.Sub(shift.ClockIn)
	}

	switch {
	case len(open) == 1:
		since := open[0].ClockIn
		status.State = StateClockedIn
		status.Since = &since
		status.Remaining = timeutil.RemainingWorkday(since, now, workdayHours) - status.Worked
		status.Worked = workday - status.Remaining
		status.Overtime = status.Remaining < 0
	case len(shifts) > 0:
		latest, _ := reconcile.Latest(shifts)
		since := *latest.ClockOut
		status.State = StateClockedOut
		status.Since = &since
		status.Remaining = workday - status.Worked
		status.Overtime = status.Remaining < 0
	default:
		status.State = StateNotClockedIn
		status.Remaining = workday
	}
	return status
}
