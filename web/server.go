// Package web serves a localhost-only single-user UI and the control API of
// the daemon. It has no auth and must stay bound to a loopback address;
// cross-site browser POSTs are rejected.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"goclockin/attendance"
	"goclockin/config"
	"goclockin/events"
	"goclockin/factorial"
	"goclockin/internal/timeutil"
	"goclockin/reconcile"
	"goclockin/storage"
)

//go:embed templates/*.html
var templateFS embed.FS

// Backend is the running daemon as seen from the UI.
type Backend interface {
	Email() string
	Status() attendance.Status
	Refresh(ctx context.Context) (attendance.Status, error)
	Post(ctx context.Context, kind events.Kind, origin string) (attendance.Outcome, error)
	UpdateCredentials(ctx context.Context, email, password string) error
	MonthShifts(ctx context.Context, month time.Time) ([]reconcile.Shift, error)
}

type Journal interface {
	ListActions(account string, from, to time.Time) ([]storage.ActionRecord, error)
}

type Server struct {
	backend Backend
	journal Journal
	clock   timeutil.Clock
	logger  *slog.Logger
	refresh time.Duration
	handler http.Handler
}

type Options struct {
	Backend Backend
	Journal Journal
	Config  config.Config
	Clock   timeutil.Clock
	Logger  *slog.Logger
}

type statusResponse struct {
	attendance.Status
	Summary string `json:"summary"`
}

type outcomeResponse struct {
	Result      string         `json:"result"`
	Decision    string         `json:"decision"`
	Message     string         `json:"message"`
	ShiftID     string         `json:"shiftId,omitempty"`
	EffectiveAt *time.Time     `json:"effectiveAt,omitempty"`
	Warning     string         `json:"warning,omitempty"`
	Error       string         `json:"error,omitempty"`
	Status      statusResponse `json:"status"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type statusPageView struct {
	Title          string
	Status         statusResponse
	RefreshSeconds int
	CurrentMonth   string
	Email          string
	Journal        []JournalRow
	JournalError   string
}

type monthRowView struct {
	Date        string
	Weekday     string
	WorkedHours float64
	ShiftCount  int
	Open        bool
	Weekend     bool
}

type monthPageView struct {
	Title         string
	CurrentMonth  string
	PreviousMonth string
	NextMonth     string
	Rows          []monthRowView
	Days          []DayRow
	TotalHours    float64
}

func NewServer(opts Options) http.Handler {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.Real()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	refresh := opts.Config.Status.RefreshInterval
	if refresh <= 0 {
		refresh = time.Minute
	}

	server := &Server{
		backend: opts.Backend,
		journal: opts.Journal,
		clock:   clock,
		logger:  logger,
		refresh: refresh,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", server.handleStatusPage)
	mux.HandleFunc("GET /month", server.handleMonthPicker)
	mux.HandleFunc("GET /month/{month}", server.handleMonth)
	mux.HandleFunc("GET /api/status", server.handleAPIStatus)
	mux.HandleFunc("POST /api/refresh", server.handleAPIRefresh)
	mux.HandleFunc("POST /api/clock-in", server.handleAPIClock(events.KindManualIn))
	mux.HandleFunc("POST /api/clock-out", server.handleAPIClock(events.KindManualOut))
	mux.HandleFunc("POST /api/events/{kind}", server.handleAPIEvent)
	mux.HandleFunc("POST /api/credentials", server.handleAPICredentials)
	mux.HandleFunc("GET /api/journal", server.handleAPIJournal)
	mux.HandleFunc("GET /api/shifts/{month}", server.handleAPIShifts)
	// Browsers mark cross-site requests; those are refused for every
	// state-changing method. Clients without Sec-Fetch-Site or Origin pass.
	server.handler = http.NewCrossOriginProtection().Handler(mux)

	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	view := statusPageView{
		Title:          "goclockin",
		Status:         newStatusResponse(s.backend.Status()),
		RefreshSeconds: int(s.refresh.Seconds()),
		CurrentMonth:   now.Format("2006-01"),
		Email:          s.backend.Email(),
	}

	today := timeutil.StartOfDay(now)
	records, err := s.journal.ListActions(view.Email, today, today.AddDate(0, 0, 1))
	if err != nil {
		view.JournalError = err.Error()
	} else {
		view.Journal = journalRows(records)
	}

	if err := renderTemplate(w, "status.html", view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleMonthPicker(w http.ResponseWriter, r *http.Request) {
	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		http.Redirect(w, r, "/month/"+s.clock.Now().Format("2006-01"), http.StatusFound)
		return
	}
	if _, err := parseMonth(month); err != nil {
		http.Error(w, "invalid month format (expected YYYY-MM)", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/month/"+month, http.StatusFound)
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	monthRaw := strings.TrimSpace(r.PathValue("month"))
	monthStart, err := parseMonth(monthRaw)
	if err != nil {
		http.Error(w, "invalid month format (expected YYYY-MM)", http.StatusBadRequest)
		return
	}

	shifts, err := s.backend.MonthShifts(r.Context(), monthStart)
	if err != nil {
		http.Error(w, fmt.Sprintf("load shifts: %v", err), errorStatus(err))
		return
	}

	days := BuildDailyView(shifts, s.clock.Now())
	summary := BuildMonthlyView(fillMonthDays(monthStart, days))

	rows := make([]monthRowView, 0, len(summary.Days))
	for _, day := range summary.Days {
		rows = append(rows, monthRowView{
			Date:        day.Date.Format(timeutil.DayLayout),
			Weekday:     day.Date.Weekday().String()[:3],
			WorkedHours: day.WorkedHours,
			ShiftCount:  day.ShiftCount,
			Open:        day.Open,
			Weekend:     day.Weekend,
		})
	}

	view := monthPageView{
		Title:         "goclockin - month " + monthRaw,
		CurrentMonth:  monthRaw,
		PreviousMonth: monthStart.AddDate(0, -1, 0).Format("2006-01"),
		NextMonth:     monthStart.AddDate(0, 1, 0).Format("2006-01"),
		Rows:          rows,
		Days:          days,
		TotalHours:    summary.TotalHours,
	}
	if err := renderTemplate(w, "month.html", view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(r.URL.Query().Get("refresh")) == "1" {
		s.handleAPIRefresh(w, r)
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(s.backend.Status()))
}

func (s *Server) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	status, err := s.backend.Refresh(r.Context())
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(status))
}

func (s *Server) handleAPIClock(kind events.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.post(w, r, kind, "web")
	}
}

func (s *Server) handleAPIEvent(w http.ResponseWriter, r *http.Request) {
	kind, err := events.ParseKind(r.PathValue("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	origin := strings.TrimSpace(r.URL.Query().Get("origin"))
	if origin == "" {
		origin = "api"
	}
	s.post(w, r, kind, origin)
}

func (s *Server) post(w http.ResponseWriter, r *http.Request, kind events.Kind, origin string) {
	outcome, err := s.backend.Post(r.Context(), kind, origin)
	if err != nil {
		s.logger.Warn("event rejected", "event", string(kind), "origin", origin, "error", err)
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	resp := outcomeResponse{
		Result:   outcome.Result(),
		Decision: outcome.DecisionLabel(),
		Message:  outcome.Message(),
		ShiftID:  outcome.Decision.ShiftID,
		Warning:  outcome.Decision.Warning,
		Status:   newStatusResponse(s.backend.Status()),
	}
	if outcome.Shift != nil && resp.ShiftID == "" {
		resp.ShiftID = outcome.Shift.ID
	}
	if resp.Result == attendance.ResultOK {
		at := outcome.Decision.At
		resp.EffectiveAt = &at
	}

	status := http.StatusOK
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
		if resp.Result == attendance.ResultFailed {
			status = errorStatus(outcome.Err)
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleAPICredentials(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decodeJSON(r, &body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		body.Email = r.FormValue("email")
		body.Password = r.FormValue("password")
	}
	body.Email = strings.TrimSpace(body.Email)
	if body.Email == "" || body.Password == "" {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	if err := s.backend.UpdateCredentials(r.Context(), body.Email, body.Password); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, newStatusResponse(s.backend.Status()))
}

func (s *Server) handleAPIJournal(w http.ResponseWriter, r *http.Request) {
	monthRaw := strings.TrimSpace(r.URL.Query().Get("month"))
	if monthRaw == "" {
		monthRaw = s.clock.Now().Format("2006-01")
	}
	monthStart, err := parseMonth(monthRaw)
	if err != nil {
		http.Error(w, "invalid month format (expected YYYY-MM)", http.StatusBadRequest)
		return
	}

	records, err := s.journal.ListActions(s.backend.Email(), monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		http.Error(w, fmt.Sprintf("list journal: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, journalRows(records))
}

func (s *Server) handleAPIShifts(w http.ResponseWriter, r *http.Request) {
	monthStart, err := parseMonth(r.PathValue("month"))
	if err != nil {
		http.Error(w, "invalid month format (expected YYYY-MM)", http.StatusBadRequest)
		return
	}

	shifts, err := s.backend.MonthShifts(r.Context(), monthStart)
	if err != nil {
		http.Error(w, fmt.Sprintf("load shifts: %v", err), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, BuildDailyView(shifts, s.clock.Now()))
}

func newStatusResponse(status attendance.Status) statusResponse {
	return statusResponse{Status: status, Summary: status.Summary()}
}

// errorStatus maps daemon and gateway errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, events.ErrQueueFull), errors.Is(err, events.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, config.ErrConfiguration):
		return http.StatusConflict
	case errors.Is(err, factorial.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, factorial.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	var apiErr *factorial.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func renderTemplate(w http.ResponseWriter, pageTemplate string, data any) error {
	tmpl, err := template.New("base.html").Funcs(template.FuncMap{
		"fmtHours": func(value float64) string {
			return fmt.Sprintf("%.2f", value)
		},
		"fmtTime": func(value time.Time) string {
			return value.Format("15:04")
		},
		"fmtDuration": timeutil.FormatDuration,
	}).ParseFS(templateFS, "templates/base.html", "templates/"+pageTemplate)
	if err != nil {
		return fmt.Errorf("parse template %s: %w", pageTemplate, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		return fmt.Errorf("render template %s: %w", pageTemplate, err)
	}
	return nil
}

func parseMonth(value string) (time.Time, error) {
	parsed, err := time.ParseInLocation("2006-01", strings.TrimSpace(value), time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return timeutil.StartOfDay(parsed), nil
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
