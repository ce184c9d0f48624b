package factorial

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	SessionCookieName = "_factorial_session_v2"
	authStateFile     = "factorial-auth-state.json"
)

// AuthState is a browser session captured by the SSO login flow.
type AuthState struct {
	Email     string        `json:"email,omitempty"`
	CSRFToken string        `json:"csrf_token,omitempty"`
	Cookies   []StateCookie `json:"cookies"`
}

type StateCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

func DefaultAuthStatePath(dir string) string {
	return filepath.Join(dir, authStateFile)
}

func LoadAuthState(path string) (AuthState, error) {
	content, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return AuthState{}, fmt.Errorf("read auth state file: %w", err)
	}

	var state AuthState
	if err := json.Unmarshal(content, &state); err != nil {
		return AuthState{}, fmt.Errorf("decode auth state file: %w", err)
	}
	return state, nil
}

func SaveAuthState(path string, state AuthState) error {
	path = strings.TrimSpace(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create auth state directory: %w", err)
	}
	content, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode auth state: %w", err)
	}
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("write auth state file: %w", err)
	}
	return nil
}

// SessionCookie returns the Factorial session cookie value for host.
func (s AuthState) SessionCookie(targetHost string) (string, error) {
	cookies, err := s.sessionCookies(targetHost)
	if err != nil {
		return "", err
	}
	for _, cookie := range cookies {
		if cookie.Name == SessionCookieName {
			return cookie.Value, nil
		}
	}
	return "", fmt.Errorf("missing session cookie %s", SessionCookieName)
}

func (s AuthState) sessionCookies(targetHost string) ([]*http.Cookie, error) {
	host := normalizeHost(targetHost)
	if host == "" {
		return nil, errors.New("target host is required")
	}

	cookies := make([]*http.Cookie, 0, len(s.Cookies))
	found := false
	for _, cookie := range s.Cookies {
		if cookie.Name == "" || cookie.Value == "" {
			continue
		}
		if !cookieDomainMatches(cookie.Domain, host) {
			continue
		}
		if cookie.Path != "" && cookie.Path != "/" {
			continue
		}
		if cookie.Name == SessionCookieName {
			found = true
		}
		cookies = append(cookies, &http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	if !found {
		return nil, fmt.Errorf("missing required session cookie %s for host %q", SessionCookieName, host)
	}
	return cookies, nil
}

// cookieDomainMatches also accepts cookies set on a parent domain.
func cookieDomainMatches(cookieDomain, targetHost string) bool {
	domain := normalizeHost(cookieDomain)
	host := normalizeHost(targetHost)
	if domain == "" || host == "" {
		return false
	}
	return domain == host || strings.HasSuffix(host, "."+domain)
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	value = strings.TrimPrefix(value, "https://")
	value = strings.TrimPrefix(value, "http://")
	value = strings.TrimPrefix(value, ".")
	value = strings.TrimSuffix(value, "/")
	if host, _, ok := strings.Cut(value, ":"); ok {
		value = host
	}
	return value
}
