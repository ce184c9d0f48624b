package factorial

import (
	"net/http"
	"strings"
	"sync"
)

// Session is the authenticated state of one account. It is created by Login
// or seeded from a saved auth state, and invalidated on any authentication
// error. It is owned by one HTTPClient.
type Session struct {
	mu         sync.Mutex
	email      string
	cookies    map[string]*http.Cookie
	csrfToken  string
	employeeID int64
	periods    map[string]int64
	loggedIn   bool
}

func newSession() *Session {
	return &Session{
		cookies: make(map[string]*http.Cookie),
		periods: make(map[string]int64),
	}
}

// NewSession returns a signed-in session for an account whose employee is
// already known, for gateways that authenticate out of band.
func NewSession(email string, employeeID int64) *Session {
	session := newSession()
	session.email = email
	session.employeeID = employeeID
	session.loggedIn = true
	return session
}

// Valid reports whether the session may be used for data calls.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

func (s *Session) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

func (s *Session) EmployeeID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.employeeID
}

// Invalidate drops cookies and cached identifiers.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = make(map[string]*http.Cookie)
	s.periods = make(map[string]int64)
	s.csrfToken = ""
	s.employeeID = 0
	s.loggedIn = false
}

func (s *Session) storeCookies(cookies []*http.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cookie := range cookies {
		if cookie == nil || strings.TrimSpace(cookie.Name) == "" {
			continue
		}
		if cookie.MaxAge < 0 || cookie.Value == "" {
			delete(s.cookies, cookie.Name)
			continue
		}
		s.cookies[cookie.Name] = &http.Cookie{Name: cookie.Name, Value: cookie.Value}
	}
}

func (s *Session) cookieHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, 0, len(s.cookies))
	for _, cookie := range s.cookies {
		parts = append(parts, cookie.String())
	}
	return strings.Join(parts, "; ")
}

func (s *Session) csrf() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csrfToken
}

func (s *Session) setCSRF(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.csrfToken = token
}

func (s *Session) markLoggedIn(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.email = email
	s.loggedIn = true
}

func (s *Session) period(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.periods[key]
	return id, ok
}

func (s *Session) setPeriod(key string, periodID, employeeID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods[key] = periodID
	if employeeID > 0 {
		s.employeeID = employeeID
	}
}
