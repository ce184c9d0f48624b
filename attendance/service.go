// Package attendance runs clock actions end to end: session handling, the
// working-day check, shift reconciliation, the gateway write, the local
// journal and user notifications.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"goclockin/calendar"
	"goclockin/config"
	"goclockin/credential"
	"goclockin/factorial"
	"goclockin/internal/timeutil"
	"goclockin/reconcile"
	"goclockin/storage"
)

// ErrCredentialsRejected blocks automatic logins until credentials are
// refreshed.
var ErrCredentialsRejected = fmt.Errorf("%w: stored credentials were rejected", factorial.ErrAuthentication)

type Credentials interface {
	Load(email string) (string, error)
	Save(email, password string) error
	Delete(email string) error
}

type Store interface {
	SaveCalendar(account string, days []calendar.Day, fetchedOn time.Time) (int, error)
	CalendarFor(account string, from, to, fetchedOn time.Time) ([]calendar.Day, error)
	DeleteCalendar(account string) (int64, error)
	AppendAction(record storage.ActionRecord) (int64, error)
}

type Notifier interface {
	Notify(title, message string) error
}

type Options struct {
	Gateway     factorial.Client
	Credentials Credentials
	Store       Store
	Notifier    Notifier
	Clock       timeutil.Clock
	Logger      *slog.Logger

	Email        string
	WorkdayHours float64
	// ConfigErr is a startup configuration failure. It blocks automatic
	// actions; manual actions and credential refresh keep working.
	ConfigErr error
	// AuthStatePath points at a browser session saved by the SSO login.
	AuthStatePath string
	// SaveEmail persists a new account email after a successful refresh.
	SaveEmail func(email string) error
}

type Service struct {
	gateway       factorial.Client
	credentials   Credentials
	store         Store
	notifier      Notifier
	clock         timeutil.Clock
	logger        *slog.Logger
	authStatePath string
	saveEmail     func(email string) error
	workdayHours  float64

	mu        sync.Mutex
	email     string
	configErr error
	rejected  bool
	last      Status
}

func NewService(opts Options) (*Service, error) {
	if opts.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hours := opts.WorkdayHours
	if hours <= 0 {
		hours = config.DefaultWorkdayHours
	}

	s := &Service{
		gateway:       opts.Gateway,
		credentials:   opts.Credentials,
		store:         opts.Store,
		notifier:      opts.Notifier,
		clock:         clock,
		logger:        logger,
		authStatePath: strings.TrimSpace(opts.AuthStatePath),
		saveEmail:     opts.SaveEmail,
		workdayHours:  hours,
		email:         strings.TrimSpace(opts.Email),
		configErr:     opts.ConfigErr,
	}
	s.last = Status{State: StateDisconnected, Email: s.email, CheckedAt: clock.Now()}
	return s, nil
}

func (s *Service) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// HandleAction runs one clock action to completion and reports what happened.
// It never panics on gateway failures; every failure is carried in the
// outcome.
func (s *Service) HandleAction(ctx context.Context, req Request) Outcome {
	outcome := Outcome{Request: req}
	logger := s.logger.With("action", req.Action.Kind.String(), "source", req.Source, "at", req.Action.At.Format(time.RFC3339))

	email, err := s.accountForAction(req)
	if err != nil {
		outcome.Err = err
		outcome.Skipped = err.Error()
		logger.Warn("action blocked", "error", err)
		return s.finish(ctx, outcome, logger)
	}

	if err := s.ensureSession(ctx, email); err != nil {
		outcome.Err = err
		logger.Error("no session", "error", err)
		return s.finish(ctx, outcome, logger)
	}

	// Only automatic clock-ins are gated; a clock-out must always be able to
	// close a shift opened by hand on a day off.
	if !req.Manual && req.Action.Kind == reconcile.ClockIn {
		verdict, err := s.workingDay(ctx, email, req.Action.At, false)
		if err != nil {
			outcome.Err = err
			outcome.Skipped = "calendar unavailable"
			logger.Warn("skipping action, working day unknown", "error", err)
			return s.finish(ctx, outcome, logger)
		}
		if !verdict.Working {
			outcome.Skipped = verdict.Reason
			logger.Info("skipping action on non-working day", "reason", verdict.Reason)
			return s.finish(ctx, outcome, logger)
		}
	}

	employeeID := s.gateway.Session().EmployeeID()
	shifts, err := s.gateway.Shifts(ctx, employeeID, req.Action.At)
	if err != nil {
		outcome.Err = s.gatewayErr(fmt.Errorf("fetch shifts: %w", err))
		logger.Error("fetch shifts failed", "error", err)
		return s.finish(ctx, outcome, logger)
	}

	decision := reconcile.Reconcile(req.Action, shifts)
	outcome.Decision = decision
	logger = logger.With("decision", decision.Kind.String())
	if decision.Warning != "" {
		logger.Warn("decision adjusted", "warning", decision.Warning)
	}

	switch decision.Kind {
	case reconcile.Create:
		shift, err := s.gateway.CreateShift(ctx, employeeID, decision.At)
		if err != nil {
			outcome.Err = s.gatewayErr(fmt.Errorf("create shift: %w", err))
			break
		}
		outcome.Shift = &shift
	case reconcile.Close:
		shift, err := s.gateway.UpdateShift(ctx, decision.ShiftID, decision.At)
		if err != nil {
			outcome.Err = s.gatewayErr(fmt.Errorf("close shift %s: %w", decision.ShiftID, err))
			break
		}
		outcome.Shift = &shift
	case reconcile.Conflict:
		logger.Error("conflicting open shifts, manual intervention required", "reason", decision.Reason)
	default:
		logger.Info("nothing to do", "reason", decision.Reason)
	}

	return s.finish(ctx, outcome, logger)
}

// ManualClockIn clocks in now, bypassing the working-day check.
func (s *Service) ManualClockIn(ctx context.Context) Outcome {
	return s.HandleAction(ctx, Request{
		Action: reconcile.Action{Kind: reconcile.ClockIn, At: s.clock.Now()},
		Source: SourceManual,
		Manual: true,
	})
}

// ManualClockOut clocks out now, bypassing the working-day check.
func (s *Service) ManualClockOut(ctx context.Context) Outcome {
	return s.HandleAction(ctx, Request{
		Action: reconcile.Action{Kind: reconcile.ClockOut, At: s.clock.Now()},
		Source: SourceManual,
		Manual: true,
	})
}

// RefreshCredentials validates email and password by signing in, then
// persists them. Nothing is stored when the sign-in fails.
func (s *Service) RefreshCredentials(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", config.ErrConfiguration)
	}
	if err := s.gateway.Login(ctx, email, password); err != nil {
		s.logger.Warn("credential refresh failed", "email", email, "error", err)
		return err
	}
	if s.credentials != nil {
		if err := s.credentials.Save(email, password); err != nil {
			return fmt.Errorf("store credentials: %w", err)
		}
	}
	if s.saveEmail != nil {
		if err := s.saveEmail(email); err != nil {
			return fmt.Errorf("save account email: %w", err)
		}
	}

	s.mu.Lock()
	s.email = email
	s.rejected = false
	if errors.Is(s.configErr, errNoAccount) {
		s.configErr = nil
	}
	s.mu.Unlock()

	s.logger.Info("credentials refreshed", "email", email)
	s.RefreshStatus(ctx)
	return nil
}

// Logout drops the session. With forget, stored credentials, the saved
// browser session and the calendar cache are removed as well.
func (s *Service) Logout(forget bool) error {
	s.gateway.Session().Invalidate()
	email := s.Email()

	var errs []error
	if forget {
		if s.credentials != nil && email != "" {
			if err := s.credentials.Delete(email); err != nil {
				errs = append(errs, err)
			}
		}
		if s.authStatePath != "" {
			if err := os.Remove(s.authStatePath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove auth state: %w", err))
			}
		}
		if s.store != nil && email != "" {
			if _, err := s.store.DeleteCalendar(email); err != nil {
				errs = append(errs, err)
			}
		}
	}

	s.mu.Lock()
	s.last = Status{State: StateDisconnected, Email: email, Reason: "logged out", CheckedAt: s.clock.Now()}
	s.mu.Unlock()
	return errors.Join(errs...)
}

// WorkingDay evaluates date for the configured account. refresh bypasses the
// cached calendar.
func (s *Service) WorkingDay(ctx context.Context, date time.Time, refresh bool) (calendar.Verdict, error) {
	email := s.Email()
	if email == "" {
		return calendar.Verdict{}, errNoAccount
	}
	if err := s.ensureSession(ctx, email); err != nil {
		return calendar.Verdict{}, err
	}
	return s.workingDay(ctx, email, date, refresh)
}

// MonthShifts returns the remote shifts of the month containing month.
func (s *Service) MonthShifts(ctx context.Context, month time.Time) ([]reconcile.Shift, error) {
	email := s.Email()
	if email == "" {
		return nil, errNoAccount
	}
	if err := s.ensureSession(ctx, email); err != nil {
		return nil, err
	}
	shifts, err := s.gateway.MonthShifts(ctx, s.gateway.Session().EmployeeID(), month)
	if err != nil {
		return nil, s.gatewayErr(err)
	}
	return shifts, nil
}

// SessionState exposes whether automatic login is blocked.
func (s *Service) SessionState() (loggedIn, rejected bool) {
	s.mu.Lock()
	rejected = s.rejected
	s.mu.Unlock()
	return s.gateway.Session().Valid(), rejected
}

var errNoAccount = fmt.Errorf("%w: no account email configured", config.ErrConfiguration)

func (s *Service) accountForAction(req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !req.Manual && s.configErr != nil {
		return "", s.configErr
	}
	if s.email == "" {
		return "", errNoAccount
	}
	return s.email, nil
}

// ensureSession reuses a valid session, then tries the saved browser
// session, then the stored password.
func (s *Service) ensureSession(ctx context.Context, email string) error {
	session := s.gateway.Session()
	if session.Valid() && strings.EqualFold(session.Email(), email) {
		return nil
	}

	s.mu.Lock()
	rejected := s.rejected
	s.mu.Unlock()
	if rejected {
		return ErrCredentialsRejected
	}

	if s.authStatePath != "" {
		state, err := factorial.LoadAuthState(s.authStatePath)
		if err == nil && (state.Email == "" || strings.EqualFold(state.Email, email)) {
			if state.Email == "" {
				state.Email = email
			}
			resumeErr := s.gateway.Resume(ctx, state)
			if resumeErr == nil {
				s.logger.Info("resumed browser session", "email", email)
				return nil
			}
			if !errors.Is(resumeErr, factorial.ErrAuthentication) {
				return resumeErr
			}
			s.logger.Info("saved browser session expired", "email", email)
		}
	}

	if s.credentials == nil {
		return fmt.Errorf("%w: no credential store", factorial.ErrAuthentication)
	}
	password, err := s.credentials.Load(email)
	if errors.Is(err, credential.ErrNotFound) {
		return fmt.Errorf("%w: no stored password for %s", factorial.ErrAuthentication, email)
	}
	if err != nil {
		return fmt.Errorf("%w: load credentials: %v", factorial.ErrAuthentication, err)
	}

	if err := s.gateway.Login(ctx, email, password); err != nil {
		if errors.Is(err, factorial.ErrAuthentication) {
			s.mu.Lock()
			s.rejected = true
			s.mu.Unlock()
			s.notify("Factorial login failed", "Stored credentials were rejected. Sign in again to resume automatic clocking.")
			return fmt.Errorf("%w: %v", ErrCredentialsRejected, err)
		}
		return err
	}
	return nil
}

func (s *Service) workingDay(ctx context.Context, email string, date time.Time, refresh bool) (calendar.Verdict, error) {
	now := s.clock.Now()
	from := timeutil.StartOfMonth(date)
	to := timeutil.EndOfMonth(date)

	if !refresh && s.store != nil {
		cached, err := s.store.CalendarFor(email, from, to, now)
		if err != nil {
			s.logger.Warn("calendar cache read failed", "error", err)
		} else if verdict, err := calendar.Evaluate(date, cached); err == nil {
			return verdict, nil
		}
	}

	days, err := s.gateway.Calendar(ctx, s.gateway.Session().EmployeeID(), from, to)
	if err != nil {
		err = s.gatewayErr(err)
		if errors.Is(err, factorial.ErrAuthentication) {
			return calendar.Verdict{}, err
		}
		return calendar.Verdict{}, fmt.Errorf("%w: fetch calendar: %v", calendar.ErrDataUnavailable, err)
	}
	if s.store != nil {
		if _, err := s.store.SaveCalendar(email, days, now); err != nil {
			s.logger.Warn("calendar cache write failed", "error", err)
		}
	}
	return calendar.Evaluate(date, days)
}

// gatewayErr drops the session on authentication failures so the next action
// signs in again.
func (s *Service) gatewayErr(err error) error {
	if errors.Is(err, factorial.ErrAuthentication) {
		s.gateway.Session().Invalidate()
	}
	return err
}

func (s *Service) finish(ctx context.Context, outcome Outcome, logger *slog.Logger) Outcome {
	s.journal(outcome)
	s.announce(outcome)

	switch result := outcome.Result(); result {
	case ResultFailed:
		logger.Error("action failed", "error", outcome.Err)
	case ResultSkipped:
		logger.Info("action skipped", "reason", outcome.Skipped)
	default:
		logger.Info("action done", "result", result)
	}

	if !errors.Is(outcome.Err, factorial.ErrAuthentication) || s.gateway.Session().Valid() {
		s.RefreshStatus(ctx)
	} else {
		s.setStatus(s.disconnected(outcome.Err))
	}
	return outcome
}

func (s *Service) journal(outcome Outcome) {
	email := s.Email()
	if s.store == nil || email == "" {
		return
	}
	record := storage.ActionRecord{
		Account:  email,
		Kind:     outcome.Request.Action.Kind.String(),
		Source:   outcome.Request.Source,
		At:       outcome.Request.Action.At,
		Decision: outcome.DecisionLabel(),
		ShiftID:  outcome.Decision.ShiftID,
		Warning:  outcome.Decision.Warning,
		Outcome:  outcome.Result(),
	}
	if outcome.Decision.Kind == reconcile.Create || outcome.Decision.Kind == reconcile.Close {
		at := outcome.Decision.At
		record.EffectiveAt = &at
	}
	if outcome.Shift != nil && outcome.Shift.ID != "" {
		record.ShiftID = outcome.Shift.ID
	}
	if outcome.Err != nil {
		record.Error = outcome.Err.Error()
	}
	if _, err := s.store.AppendAction(record); err != nil {
		s.logger.Warn("journal write failed", "error", err)
	}
}

func (s *Service) announce(outcome Outcome) {
	switch {
	case outcome.Err != nil:
		if errors.Is(outcome.Err, ErrCredentialsRejected) {
			return
		}
		s.notify("Clock action failed", fmt.Sprintf("Could not %s: %v", outcome.Request.Action.Kind, outcome.Err))
	case outcome.Skipped != "":
		if outcome.Request.Action.Kind == reconcile.ClockIn {
			s.notify("Not clocking in", outcome.Skipped)
		}
	case outcome.Decision.Kind == reconcile.Create:
		s.notify("Clocked in", "Clocked in at "+outcome.Decision.At.Format("15:04"))
	case outcome.Decision.Kind == reconcile.Close:
		message := "Clocked out at " + outcome.Decision.At.Format("15:04")
		if outcome.Decision.Warning != "" {
			message += " (" + outcome.Decision.Warning + ")"
		}
		s.notify("Clocked out", message)
	case outcome.Decision.Kind == reconcile.Conflict:
		s.notify("Manual action required", outcome.Decision.Reason)
	}
}

func (s *Service) notify(title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(title, message); err != nil {
		s.logger.Debug("notification failed", "error", err)
	}
}
