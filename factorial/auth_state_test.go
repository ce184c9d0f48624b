package factorial

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadAuthState_SessionCookie(t *testing.T) {
	t.Parallel()

	stateJSON := `{
  "email": "sso@example.com",
  "csrf_token": "tok",
  "cookies": [
    {"name":"_factorial_session_v2","value":"abc","domain":".factorialhr.com","path":"/"},
    {"name":"_factorial_session_v2","value":"nested","domain":"api.factorialhr.com","path":"/internal"}
  ]
}`

	file := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(file, []byte(stateJSON), 0o600); err != nil {
		t.Fatalf("write state file: %v", err)
	}

	state, err := LoadAuthState(file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value, err := state.SessionCookie("https://api.factorialhr.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "abc" {
		t.Fatalf("unexpected cookie value: %q", value)
	}
	if state.Email != "sso@example.com" || state.CSRFToken != "tok" {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestAuthState_MissingCookie(t *testing.T) {
	t.Parallel()

	state := AuthState{Cookies: []StateCookie{{Name: SessionCookieName, Value: "abc", Domain: "other.example.com", Path: "/"}}}
	_, err := state.SessionCookie("api.factorialhr.com")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), SessionCookieName) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSaveAuthState_RoundTripPermissions(t *testing.T) {
	t.Parallel()

	path := DefaultAuthStatePath(filepath.Join(t.TempDir(), "nested"))
	state := AuthState{Email: "a@b.c", Cookies: []StateCookie{{Name: SessionCookieName, Value: "v", Domain: "api.factorialhr.com", Path: "/"}}}
	if err := SaveAuthState(path, state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode: %v", info.Mode().Perm())
	}
	loaded, err := LoadAuthState(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Email != "a@b.c" || len(loaded.Cookies) != 1 {
		t.Fatalf("unexpected loaded state: %+v", loaded)
	}
}

func TestCookieDomainMatches(t *testing.T) {
	t.Parallel()

	cases := []struct {
		domain, host string
		want         bool
	}{
		{".factorialhr.com", "api.factorialhr.com", true},
		{"api.factorialhr.com", "api.factorialhr.com:443", true},
		{"factorialhr.com", "evilfactorialhr.com", false},
		{"", "api.factorialhr.com", false},
	}
	for _, tc := range cases {
		if got := cookieDomainMatches(tc.domain, tc.host); got != tc.want {
			t.Fatalf("cookieDomainMatches(%q, %q) = %v", tc.domain, tc.host, got)
		}
	}
}
