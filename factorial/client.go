package factorial

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"goclockin/calendar"
	"goclockin/internal/timeutil"
	"goclockin/reconcile"
)

const (
	DefaultBaseURL = "https://api.factorialhr.com"

	signInPath  = "/users/sign_in"
	returnHost  = "factorialhr.es"
	clockLayout = "15:04"
	bodyLimit   = 4096
)

var (
	csrfPattern  = regexp.MustCompile(`<meta name="csrf-token" content="([^"]+)"`)
	flashPattern = regexp.MustCompile(`<div class="flash flash--wrong">([^<]+)</div>`)
)

// Client is the Factorial attendance surface used by the clock service.
type Client interface {
	Login(ctx context.Context, email, password string) error
	Resume(ctx context.Context, state AuthState) error
	Session() *Session
	Period(ctx context.Context, year int, month time.Month) (Period, error)
	Calendar(ctx context.Context, employeeID int64, from, to time.Time) ([]calendar.Day, error)
	Shifts(ctx context.Context, employeeID int64, day time.Time) ([]reconcile.Shift, error)
	MonthShifts(ctx context.Context, employeeID int64, month time.Time) ([]reconcile.Shift, error)
	CreateShift(ctx context.Context, employeeID int64, start time.Time) (reconcile.Shift, error)
	UpdateShift(ctx context.Context, shiftID string, end time.Time) (reconcile.Shift, error)
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientConfig struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	Location   *time.Location
	HTTPClient httpDoer
	Logger     *slog.Logger
}

type HTTPClient struct {
	baseURL    *url.URL
	userAgent  string
	location   *time.Location
	httpClient httpDoer
	logger     *slog.Logger
	session    *Session
}

func NewClient(cfg ClientConfig) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsedBase, err := url.Parse(baseURL)
	if err != nil || parsedBase.Scheme == "" || parsedBase.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	doer := cfg.HTTPClient
	if doer == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		doer = &http.Client{
			Timeout: timeout,
			// Cookies are tracked by the session, so redirects are followed by hand.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "goclockin"
	}

	return &HTTPClient{
		baseURL:    parsedBase,
		userAgent:  userAgent,
		location:   location,
		httpClient: doer,
		logger:     logger,
		session:    newSession(),
	}, nil
}

// Period is one monthly attendance period of an employee.
type Period struct {
	ID         int64 `json:"id"`
	EmployeeID int64 `json:"employee_id"`
	Year       int   `json:"year"`
	Month      int   `json:"month"`
}

type shiftPayload struct {
	ID       int64   `json:"id"`
	PeriodID int64   `json:"period_id"`
	Day      int     `json:"day"`
	Date     string  `json:"date"`
	ClockIn  *string `json:"clock_in"`
	ClockOut *string `json:"clock_out"`
}

type createShiftRequest struct {
	PeriodID   int64  `json:"period_id"`
	EmployeeID int64  `json:"employee_id"`
	Day        int    `json:"day"`
	ClockIn    string `json:"clock_in"`
	Workable   bool   `json:"workable"`
	Source     string `json:"source"`
}

type updateShiftRequest struct {
	ClockOut string `json:"clock_out"`
}

func (c *HTTPClient) Session() *Session {
	return c.session
}

// Login signs in with email and password and resolves the current period.
// Any previous session state is discarded first.
func (c *HTTPClient) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", ErrAuthentication)
	}
	c.session.Invalidate()

	c.logger.Info("fetching sign-in page")
	page, _, err := c.doPage(ctx, http.MethodGet, signInPath, nil)
	if err != nil {
		return err
	}
	token := scrapeCSRF(page)
	if token == "" {
		return &APIError{Method: http.MethodGet, Path: signInPath, Err: errors.New("csrf token not found")}
	}
	c.session.setCSRF(token)

	form := url.Values{}
	form.Set("authenticity_token", token)
	form.Set("return_host", returnHost)
	form.Set("user[email]", email)
	form.Set("user[password]", password)
	form.Set("user[remember_me]", "0")
	form.Set("commit", "Sign in")

	c.logger.Info("submitting credentials", "email", email)
	body, location, err := c.doPage(ctx, http.MethodPost, signInPath, form)
	if err != nil {
		return err
	}
	if message := scrapeFlash(body); message != "" {
		return fmt.Errorf("%w: %s", ErrAuthentication, message)
	}
	if location != "" {
		if strings.Contains(location, signInPath) {
			return fmt.Errorf("%w: redirected back to sign-in", ErrAuthentication)
		}
		if landing, err := c.followRedirect(ctx, location); err == nil {
			body = landing
		} else {
			c.logger.Debug("sign-in redirect not followed", "location", location, "error", err)
		}
	}
	if token := scrapeCSRF(body); token != "" {
		c.session.setCSRF(token)
	}

	c.session.markLoggedIn(email)
	now := time.Now().In(c.location)
	if _, err := c.Period(ctx, now.Year(), now.Month()); err != nil {
		c.session.Invalidate()
		return err
	}
	c.logger.Info("login successful", "employee_id", c.session.EmployeeID())
	return nil
}

// Resume seeds the session from a saved browser auth state and checks it by
// resolving the current period.
func (c *HTTPClient) Resume(ctx context.Context, state AuthState) error {
	cookies, err := state.sessionCookies(c.baseURL.Host)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	c.session.Invalidate()
	c.session.storeCookies(cookies)
	c.session.setCSRF(state.CSRFToken)
	c.session.markLoggedIn(state.Email)

	now := time.Now().In(c.location)
	if _, err := c.Period(ctx, now.Year(), now.Month()); err != nil {
		c.session.Invalidate()
		return err
	}
	return nil
}

func (c *HTTPClient) Period(ctx context.Context, year int, month time.Month) (Period, error) {
	key := periodKey(year, month)
	if id, ok := c.session.period(key); ok {
		return Period{ID: id, EmployeeID: c.session.EmployeeID(), Year: year, Month: int(month)}, nil
	}

	query := url.Values{}
	query.Set("year", strconv.Itoa(year))
	query.Set("month", strconv.Itoa(int(month)))

	var periods []Period
	if err := c.doJSON(ctx, http.MethodGet, "/attendance/periods", query, nil, &periods); err != nil {
		return Period{}, err
	}
	for _, period := range periods {
		if period.Year == year && period.Month == int(month) {
			c.session.setPeriod(key, period.ID, period.EmployeeID)
			return period, nil
		}
	}
	return Period{}, &APIError{
		Method: http.MethodGet,
		Path:   "/attendance/periods",
		Err:    fmt.Errorf("no period for %s", key),
	}
}

// Calendar returns normalized calendar days in [from, to], fetched month by month.
func (c *HTTPClient) Calendar(ctx context.Context, employeeID int64, from, to time.Time) ([]calendar.Day, error) {
	from = timeutil.StartOfDay(from.In(c.location))
	to = timeutil.StartOfDay(to.In(c.location))
	if to.Before(from) {
		return nil, fmt.Errorf("invalid calendar range %s..%s", from.Format(timeutil.DayLayout), to.Format(timeutil.DayLayout))
	}

	days := make([]calendar.Day, 0, 31)
	for month := timeutil.StartOfMonth(from); !month.After(to); month = month.AddDate(0, 1, 0) {
		query := url.Values{}
		query.Set("id", strconv.FormatInt(employeeID, 10))
		query.Set("year", strconv.Itoa(month.Year()))
		query.Set("month", strconv.Itoa(int(month.Month())))

		var raw []calendar.RawDay
		if err := c.doJSON(ctx, http.MethodGet, "/attendance/calendar", query, nil, &raw); err != nil {
			return nil, err
		}
		normalized, err := calendar.Normalize(raw, month, c.location)
		if err != nil {
			return nil, &APIError{Method: http.MethodGet, Path: "/attendance/calendar", Err: err}
		}
		for _, day := range normalized {
			if day.Date.Before(from) || day.Date.After(to) {
				continue
			}
			days = append(days, day)
		}
	}
	return days, nil
}

// Shifts returns the shifts recorded for the given day.
func (c *HTTPClient) Shifts(ctx context.Context, employeeID int64, day time.Time) ([]reconcile.Shift, error) {
	day = timeutil.StartOfDay(day.In(c.location))
	month, err := c.MonthShifts(ctx, employeeID, day)
	if err != nil {
		return nil, err
	}
	shifts := make([]reconcile.Shift, 0, 2)
	for _, shift := range month {
		if timeutil.SameDay(shift.ClockIn, day) {
			shifts = append(shifts, shift)
		}
	}
	return shifts, nil
}

// MonthShifts returns every shift of the month containing month, ordered as
// the service reports them. Entries without a clock-in are skipped.
func (c *HTTPClient) MonthShifts(ctx context.Context, employeeID int64, month time.Time) ([]reconcile.Shift, error) {
	month = timeutil.StartOfMonth(month.In(c.location))
	query := url.Values{}
	query.Set("employee_id", strconv.FormatInt(employeeID, 10))
	query.Set("year", strconv.Itoa(month.Year()))
	query.Set("month", strconv.Itoa(int(month.Month())))

	var payload []shiftPayload
	if err := c.doJSON(ctx, http.MethodGet, "/attendance/shifts", query, nil, &payload); err != nil {
		return nil, err
	}

	shifts := make([]reconcile.Shift, 0, len(payload))
	for _, item := range payload {
		if item.ClockIn == nil {
			continue
		}
		shiftDay, err := c.payloadDay(item, month)
		if err != nil {
			return nil, &APIError{Method: http.MethodGet, Path: "/attendance/shifts", Err: err}
		}
		shift, err := toShift(item, shiftDay)
		if err != nil {
			return nil, &APIError{Method: http.MethodGet, Path: "/attendance/shifts", Err: err}
		}
		shifts = append(shifts, shift)
	}
	return shifts, nil
}

func (c *HTTPClient) CreateShift(ctx context.Context, employeeID int64, start time.Time) (reconcile.Shift, error) {
	start = start.In(c.location)
	period, err := c.Period(ctx, start.Year(), start.Month())
	if err != nil {
		return reconcile.Shift{}, err
	}
	request := createShiftRequest{
		PeriodID:   period.ID,
		EmployeeID: employeeID,
		Day:        start.Day(),
		ClockIn:    start.Format(clockLayout),
		Workable:   true,
		Source:     "desktop",
	}

	c.logger.Info("creating shift", "clock_in", request.ClockIn, "day", start.Format(timeutil.DayLayout))
	var created shiftPayload
	if err := c.doJSON(ctx, http.MethodPost, "/attendance/shifts", nil, request, &created); err != nil {
		return reconcile.Shift{}, err
	}
	if created.ID == 0 {
		// Some responses carry no body; the caller re-reads shifts when it needs the ID.
		return reconcile.Shift{ClockIn: start.Truncate(time.Minute)}, nil
	}
	shift, err := toShift(created, timeutil.StartOfDay(start))
	if err != nil {
		return reconcile.Shift{}, &APIError{Method: http.MethodPost, Path: "/attendance/shifts", Err: err}
	}
	return shift, nil
}

func (c *HTTPClient) UpdateShift(ctx context.Context, shiftID string, end time.Time) (reconcile.Shift, error) {
	shiftID = strings.TrimSpace(shiftID)
	if shiftID == "" {
		return reconcile.Shift{}, errors.New("shift id is required")
	}
	end = end.In(c.location)
	endpointPath := "/attendance/shifts/" + url.PathEscape(shiftID)
	request := updateShiftRequest{ClockOut: end.Format(clockLayout)}

	c.logger.Info("closing shift", "shift_id", shiftID, "clock_out", request.ClockOut)
	var updated shiftPayload
	if err := c.doJSON(ctx, http.MethodPatch, endpointPath, nil, request, &updated); err != nil {
		return reconcile.Shift{}, err
	}
	if updated.ClockIn == nil {
		closed := end.Truncate(time.Minute)
		return reconcile.Shift{ID: shiftID, ClockOut: &closed}, nil
	}
	shift, err := toShift(updated, timeutil.StartOfDay(end))
	if err != nil {
		return reconcile.Shift{}, &APIError{Method: http.MethodPatch, Path: endpointPath, Err: err}
	}
	return shift, nil
}

func (c *HTTPClient) payloadDay(item shiftPayload, reference time.Time) (time.Time, error) {
	if value := strings.TrimSpace(item.Date); value != "" {
		parsed, err := time.ParseInLocation(timeutil.DayLayout, value, c.location)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse shift date %q: %w", value, err)
		}
		return parsed, nil
	}
	if item.Day < 1 || item.Day > 31 {
		return time.Time{}, fmt.Errorf("invalid shift day %d", item.Day)
	}
	return time.Date(reference.Year(), reference.Month(), item.Day, 0, 0, 0, 0, c.location), nil
}

func toShift(item shiftPayload, day time.Time) (reconcile.Shift, error) {
	if item.ClockIn == nil {
		return reconcile.Shift{}, fmt.Errorf("shift %d has no clock-in", item.ID)
	}
	clockIn, err := timeutil.AtClock(day, strings.TrimSpace(*item.ClockIn))
	if err != nil {
		return reconcile.Shift{}, err
	}
	shift := reconcile.Shift{ID: strconv.FormatInt(item.ID, 10), ClockIn: clockIn}
	if item.ClockOut != nil && strings.TrimSpace(*item.ClockOut) != "" {
		clockOut, err := timeutil.AtClock(day, strings.TrimSpace(*item.ClockOut))
		if err != nil {
			return reconcile.Shift{}, err
		}
		shift.ClockOut = &clockOut
	}
	return shift, nil
}

func (c *HTTPClient) followRedirect(ctx context.Context, location string) ([]byte, error) {
	target, err := c.baseURL.Parse(location)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(target.Host, c.baseURL.Host) {
		return nil, fmt.Errorf("redirect to foreign host %q", target.Host)
	}
	body, _, err := c.doPage(ctx, http.MethodGet, target.RequestURI(), nil)
	return body, err
}

// doPage performs an HTML request. It returns the body and, for redirects,
// the Location header.
func (c *HTTPClient) doPage(ctx context.Context, method, endpointPath string, form url.Values) ([]byte, string, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := c.newRequest(ctx, method, endpointPath, body)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.send(req, endpointPath)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s %s: %v", ErrTransport, method, endpointPath, err)
	}
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return content, resp.Header.Get("Location"), nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusUnprocessableEntity:
		if message := scrapeFlash(content); message != "" {
			return nil, "", fmt.Errorf("%w: %s", ErrAuthentication, message)
		}
		return nil, "", fmt.Errorf("%w: status %d", ErrAuthentication, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, "", &APIError{
			Method:     method,
			Path:       endpointPath,
			StatusCode: resp.StatusCode,
			Body:       truncate(content),
		}
	}
	return content, "", nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, endpointPath string, query url.Values, payload, out any) error {
	if !c.session.Valid() {
		return ErrNotLoggedIn
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request %s %s: %w", method, endpointPath, err)
		}
		body = bytes.NewReader(encoded)
	}

	target := endpointPath
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := c.newRequest(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req, endpointPath)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.session.Invalidate()
		return fmt.Errorf("%w: %s %s returned status %d", ErrAuthentication, method, endpointPath, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, bodyLimit))
		return &APIError{
			Method:     method,
			Path:       endpointPath,
			StatusCode: resp.StatusCode,
			Body:       truncate(responseBody),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &APIError{Method: method, Path: endpointPath, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	requestURL, err := c.baseURL.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("build request url %q: %w", target, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, target, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if cookies := c.session.cookieHeader(); cookies != "" {
		req.Header.Set("Cookie", cookies)
	}
	if token := c.session.csrf(); token != "" && method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", token)
	}
	return req, nil
}

func (c *HTTPClient) send(req *http.Request, endpointPath string) (*http.Response, error) {
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, req.Method, endpointPath, err)
	}
	c.logger.Debug("factorial request", "method", req.Method, "path", endpointPath, "status", resp.StatusCode, "elapsed", time.Since(started))
	c.session.storeCookies(resp.Cookies())
	return resp, nil
}

func scrapeCSRF(page []byte) string {
	match := csrfPattern.FindSubmatch(page)
	if match == nil {
		return ""
	}
	return string(match[1])
}

func scrapeFlash(page []byte) string {
	match := flashPattern.FindSubmatch(page)
	if match == nil {
		return ""
	}
	return strings.TrimSpace(string(match[1]))
}

func truncate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		return text[:512] + "..."
	}
	return text
}

func periodKey(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}
