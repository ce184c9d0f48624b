package factorial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeDoer struct {
	fn func(r *http.Request) (*http.Response, error)
}

func (f fakeDoer) Do(r *http.Request) (*http.Response, error) {
	return f.fn(r)
}

func jsonResponse(payload any) *http.Response {
	body, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(string(body))),
		Header:     make(http.Header),
	}
}

func htmlResponse(status int, body string, cookies ...string) *http.Response {
	header := make(http.Header)
	for _, cookie := range cookies {
		header.Add("Set-Cookie", cookie)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     header,
	}
}

func statusResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

const signInPage = `<html><head><meta name="csrf-token" content="token-1"></head><body></body></html>`

func periodsFor(r *http.Request) *http.Response {
	year, _ := strconv.Atoi(r.URL.Query().Get("year"))
	month, _ := strconv.Atoi(r.URL.Query().Get("month"))
	return jsonResponse([]Period{
		{ID: 99, EmployeeID: 7, Year: year - 1, Month: month},
		{ID: 500, EmployeeID: 7, Year: year, Month: month},
	})
}

func newTestClient(t *testing.T, fn func(r *http.Request) (*http.Response, error)) *HTTPClient {
	t.Helper()
	client, err := NewClient(ClientConfig{
		BaseURL:    "https://api.factorialhr.com",
		Location:   time.UTC,
		HTTPClient: fakeDoer{fn: fn},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func loggedInClient(t *testing.T, fn func(r *http.Request) (*http.Response, error)) *HTTPClient {
	t.Helper()
	client := newTestClient(t, fn)
	client.session.markLoggedIn("ana@example.com")
	client.session.setCSRF("token-2")
	client.session.storeCookies([]*http.Cookie{{Name: SessionCookieName, Value: "sess"}})
	return client
}

func TestLogin_ScrapesTokenAndResolvesPeriod(t *testing.T) {
	t.Parallel()

	var form url.Values
	var periodCookie string
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		switch fmt.Sprintf("%s %s", r.Method, r.URL.Path) {
		case "GET /users/sign_in":
			return htmlResponse(http.StatusOK, signInPage, SessionCookieName+"=anon; Path=/"), nil
		case "POST /users/sign_in":
			if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
				t.Fatalf("unexpected content type: %q", got)
			}
			if got := r.Header.Get("Cookie"); got != SessionCookieName+"=anon" {
				t.Fatalf("unexpected cookie on sign-in post: %q", got)
			}
			body, _ := io.ReadAll(r.Body)
			form, _ = url.ParseQuery(string(body))
			resp := htmlResponse(http.StatusFound, "", SessionCookieName+"=authed; Path=/")
			resp.Header.Set("Location", "/dashboard")
			return resp, nil
		case "GET /dashboard":
			return htmlResponse(http.StatusOK, `<meta name="csrf-token" content="token-2">`), nil
		case "GET /attendance/periods":
			periodCookie = r.Header.Get("Cookie")
			return periodsFor(r), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.String())
		return nil, nil
	})

	if err := client.Login(context.Background(), "ana@example.com", "secret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"authenticity_token": "token-1",
		"return_host":        "factorialhr.es",
		"user[email]":        "ana@example.com",
		"user[password]":     "secret",
		"user[remember_me]":  "0",
		"commit":             "Sign in",
	}
	for key, value := range want {
		if got := form.Get(key); got != value {
			t.Fatalf("unexpected form value %s: %q", key, got)
		}
	}
	if periodCookie != SessionCookieName+"=authed" {
		t.Fatalf("unexpected cookie after login: %q", periodCookie)
	}

	session := client.Session()
	if !session.Valid() {
		t.Fatalf("expected valid session")
	}
	if session.EmployeeID() != 7 {
		t.Fatalf("unexpected employee id: %d", session.EmployeeID())
	}
	if session.Email() != "ana@example.com" {
		t.Fatalf("unexpected email: %q", session.Email())
	}
	if session.csrf() != "token-2" {
		t.Fatalf("unexpected csrf token: %q", session.csrf())
	}
}

func TestLogin_FlashErrorIsAuthentication(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		switch r.Method {
		case http.MethodGet:
			return htmlResponse(http.StatusOK, signInPage), nil
		case http.MethodPost:
			return htmlResponse(http.StatusOK, `<div class="flash flash--wrong">Invalid email or password.</div>`), nil
		}
		return nil, errors.New("unexpected")
	})

	err := client.Login(context.Background(), "ana@example.com", "wrong")
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid email or password.") {
		t.Fatalf("expected flash text in error, got %q", err.Error())
	}
	if client.Session().Valid() {
		t.Fatalf("session must stay invalid")
	}
}

func TestLogin_MissingCSRFToken(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return htmlResponse(http.StatusOK, "<html></html>"), nil
	})

	err := client.Login(context.Background(), "ana@example.com", "secret")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	if IsTemporary(err) {
		t.Fatalf("missing token must not be temporary")
	}
}

func TestLogin_RequiresCredentials(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if err := client.Login(context.Background(), "", "x"); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestDataCallsRequireSession(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	_, err := client.Shifts(context.Background(), 7, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrNotLoggedIn) || !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected not logged in error, got %v", err)
	}
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	t.Parallel()

	client := loggedInClient(t, func(r *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusUnauthorized, `{"error":"expired"}`), nil
	})

	_, err := client.Shifts(context.Background(), 7, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if client.Session().Valid() {
		t.Fatalf("expected session to be invalidated")
	}
	if client.Session().cookieHeader() != "" {
		t.Fatalf("expected cookies to be dropped")
	}
}

func TestServerErrorIsTemporary(t *testing.T) {
	t.Parallel()

	client := loggedInClient(t, func(r *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusBadGateway, "upstream down"), nil
	})

	_, err := client.Shifts(context.Background(), 7, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Body != "upstream down" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if !IsTemporary(err) {
		t.Fatalf("expected temporary error")
	}
	if !client.Session().Valid() {
		t.Fatalf("server errors must keep the session")
	}
}

func TestTransportErrorIsTemporary(t *testing.T) {
	t.Parallel()

	client := loggedInClient(t, func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	})

	_, err := client.Shifts(context.Background(), 7, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !IsTemporary(err) {
		t.Fatalf("expected temporary error")
	}
}

func TestShifts_FiltersDayAndParsesClockTimes(t *testing.T) {
	t.Parallel()

	in1, out1 := "08:00", "12:00"
	in2 := "13:00"
	in3 := "09:00"
	client := loggedInClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/attendance/shifts" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("employee_id") != "7" || query.Get("year") != "2026" || query.Get("month") != "3" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Fatalf("unexpected accept header: %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("X-CSRF-Token") != "" {
			t.Fatalf("GET must not carry csrf token")
		}
		return jsonResponse([]shiftPayload{
			{ID: 1, Day: 2, ClockIn: &in1, ClockOut: &out1},
			{ID: 2, Date: "2026-03-02", ClockIn: &in2},
			{ID: 3, Day: 3, ClockIn: &in3},
		}), nil
	})

	day := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	shifts, err := client.Shifts(context.Background(), 7, day)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shifts) != 2 {
		t.Fatalf("expected 2 shifts, got %d", len(shifts))
	}
	if shifts[0].ID != "1" || shifts[0].Open() || shifts[0].ClockOut.Hour() != 12 {
		t.Fatalf("unexpected first shift: %+v", shifts[0])
	}
	if shifts[1].ID != "2" || !shifts[1].Open() || shifts[1].ClockIn.Hour() != 13 {
		t.Fatalf("unexpected second shift: %+v", shifts[1])
	}
}

func TestCreateShift_SendsPayload(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen createShiftRequest
	var csrf string
	client := loggedInClient(t, func(r *http.Request) (*http.Response, error) {
		switch fmt.Sprintf("%s %s", r.Method, r.URL.Path) {
		case "GET /attendance/periods":
			return periodsFor(r), nil
		case "POST /attendance/shifts":
			mu.Lock()
			defer mu.Unlock()
			csrf = r.Header.Get("X-CSRF-Token")
			if err := json.NewDecoder(r.Body).Decode(&seen); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			clockIn := "09:15"
			return jsonResponse(shiftPayload{ID: 42, Day: 2, ClockIn: &clockIn}), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	start := time.Date(2026, 3, 2, 9, 15, 40, 0, time.UTC)
	shift, err := client.CreateShift(context.Background(), 7, start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if csrf != "token-2" {
		t.Fatalf("unexpected csrf header: %q", csrf)
	}
	if seen.PeriodID != 500 || seen.EmployeeID != 7 || seen.Day != 2 || seen.ClockIn != "09:15" || !seen.Workable || seen.Source != "desktop" {
		t.Fatalf("unexpected payload: %+v", seen)
	}
	if shift.ID != "42" || !shift.Open() || !shift.ClockIn.Equal(time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)) {
		t.Fatalf("unexpected shift: %+v", shift)
	}
}

func TestUpdateShift_PatchesClockOut(t *testing.T) {
	t.Parallel()

	var seen updateShiftRequest
	client := loggedInClient(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPatch || r.URL.Path != "/attendance/shifts/42" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&seen); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		clockIn, clockOut := "09:15", "17:30"
		return jsonResponse(shiftPayload{ID: 42, Day: 2, ClockIn: &clockIn, ClockOut: &clockOut}), nil
	})

	end := time.Date(2026, 3, 2, 17, 30, 5, 0, time.UTC)
	shift, err := client.UpdateShift(context.Background(), "42", end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.ClockOut != "17:30" {
		t.Fatalf("unexpected clock_out: %q", seen.ClockOut)
	}
	if shift.Open() || shift.ClockOut.Minute() != 30 {
		t.Fatalf("unexpected shift: %+v", shift)
	}
}

func TestCalendar_SpansMonthsAndClipsRange(t *testing.T) {
	t.Parallel()

	var months []string
	client := loggedInClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/attendance/calendar" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("id") != "7" {
			t.Fatalf("unexpected employee id: %q", query.Get("id"))
		}
		months = append(months, query.Get("year")+"-"+query.Get("month"))
		if query.Get("month") == "1" {
			return jsonResponse([]map[string]any{
				{"id": "a", "day": 30, "is_laborable": true},
				{"id": "b", "day": 31, "is_laborable": false, "is_leave": true, "leave_name": "Vacation"},
			}), nil
		}
		return jsonResponse([]map[string]any{
			{"id": "c", "day": 1, "is_laborable": false},
			{"id": "d", "day": 2, "is_laborable": false, "holidays": []map[string]string{{"summary": "Candlemas"}}},
			{"id": "e", "day": 3, "is_laborable": true},
		}), nil
	})

	from := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	days, err := client.Calendar(context.Background(), 7, from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(months, ",") != "2026-1,2026-2" {
		t.Fatalf("unexpected months: %v", months)
	}
	if len(days) != 3 {
		t.Fatalf("expected 3 days, got %d", len(days))
	}
	if !days[0].IsLeave || days[0].Label != "Vacation" {
		t.Fatalf("unexpected leave day: %+v", days[0])
	}
	if !days[2].IsHoliday || !days[2].IsWorkingWeekday || days[2].Label != "Candlemas" {
		t.Fatalf("unexpected holiday: %+v", days[2])
	}
}

func TestPeriod_CachedPerMonth(t *testing.T) {
	t.Parallel()

	calls := 0
	client := loggedInClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return periodsFor(r), nil
	})

	for i := 0; i < 3; i++ {
		period, err := client.Period(context.Background(), 2026, time.March)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if period.ID != 500 {
			t.Fatalf("unexpected period: %+v", period)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one request, got %d", calls)
	}
}

func TestResume_SeedsCookiesFromState(t *testing.T) {
	t.Parallel()

	var cookie, csrf string
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		switch fmt.Sprintf("%s %s", r.Method, r.URL.Path) {
		case "GET /attendance/periods":
			cookie = r.Header.Get("Cookie")
			return periodsFor(r), nil
		case "PATCH /attendance/shifts/5":
			csrf = r.Header.Get("X-CSRF-Token")
			return jsonResponse(map[string]any{}), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	state := AuthState{
		Email:     "sso@example.com",
		CSRFToken: "browser-token",
		Cookies: []StateCookie{
			{Name: SessionCookieName, Value: "sso", Domain: ".factorialhr.com", Path: "/"},
			{Name: "other", Value: "x", Domain: "example.com", Path: "/"},
		},
	}
	if err := client.Resume(context.Background(), state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cookie != SessionCookieName+"=sso" {
		t.Fatalf("unexpected cookie header: %q", cookie)
	}
	if _, err := client.UpdateShift(context.Background(), "5", time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if csrf != "browser-token" {
		t.Fatalf("unexpected csrf header: %q", csrf)
	}
}

func TestResume_RejectedStateInvalidates(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return statusResponse(http.StatusForbidden, ""), nil
	})
	state := AuthState{Cookies: []StateCookie{{Name: SessionCookieName, Value: "old", Domain: "api.factorialhr.com"}}}
	if err := client.Resume(context.Background(), state); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if client.Session().Valid() {
		t.Fatalf("expected invalid session")
	}
}
