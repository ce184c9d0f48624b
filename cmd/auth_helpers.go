package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"goclockin/config"
	"goclockin/factorial"
)

func resolveDefaultAuthStatePath(explicitPath string) (string, error) {
	if strings.TrimSpace(explicitPath) != "" {
		return explicitPath, nil
	}
	cfg, _ := loadConfig()
	return factorial.DefaultAuthStatePath(cfg.Credentials.Dir), nil
}

func resolveProfileDir(explicitDir string) (string, bool, error) {
	if strings.TrimSpace(explicitDir) != "" {
		return explicitDir, false, nil
	}
	base := config.AppDir()
	if err := os.MkdirAll(base, 0o700); err != nil {
		return "", false, fmt.Errorf("create directory %q: %w", base, err)
	}
	profileDir, err := os.MkdirTemp(base, "chrome-profile-*")
	if err != nil {
		return "", false, fmt.Errorf("create temporary profile dir: %w", err)
	}
	return profileDir, true, nil
}

// resolveFactorialURLs returns the API base URL, the sign-in page and the
// host the session cookie belongs to.
func resolveFactorialURLs(urlOverride string) (string, string, string, error) {
	rawURL := strings.TrimSpace(urlOverride)
	if rawURL == "" {
		cfg, _ := loadConfig()
		rawURL = strings.TrimSpace(cfg.Factorial.URL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", "", "", fmt.Errorf("invalid url %q", rawURL)
	}

	baseURL := parsed.Scheme + "://" + parsed.Host
	signInURL := baseURL + "/users/sign_in"
	return baseURL, signInURL, parsed.Hostname(), nil
}

func resolveAccountEmail(explicit string) (string, error) {
	if email := strings.TrimSpace(explicit); email != "" {
		return email, nil
	}
	cfg, _ := loadConfig()
	if email := strings.TrimSpace(cfg.Account.Email); email != "" {
		return email, nil
	}
	return "", errors.New("no account email; pass --email or set account.email")
}

// readPassword reads the password from stdin when it is not a terminal, and
// prompts without echo otherwise.
func readPassword(in *os.File, out io.Writer, fromStdin bool) (string, error) {
	fd := int(in.Fd())
	if fromStdin || !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return "", errors.New("empty password")
		}
		return password, nil
	}

	fmt.Fprint(out, "Factorial password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("empty password")
	}
	return string(raw), nil
}

func ensureParentDir(path string, mode os.FileMode) error {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, mode); err != nil {
		return fmt.Errorf("create directory %q: %w", parent, err)
	}
	return nil
}
