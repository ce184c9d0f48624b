package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"goclockin/factorial"
)

var (
	authLoginEmail         string
	authLoginPasswordStdin bool
	authLoginBrowser       bool
	authLoginURL           string
	authLoginStateFile     string
	authLoginProfileDir    string
	authLoginSkipVerify    bool
	authLoginBrowserBin    string
	authLoginTimeout       time.Duration
	authLoginDebugCookies  bool
)

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Validate and store Factorial credentials.",
	Long: `Sign in to Factorial and store the account for automatic clocking.

By default the password is prompted without echo (or read from stdin), validated by
signing in, and stored encrypted in credentials.dir. The email is written to the
config file.

With --browser a visible browser opens for SSO logins instead; the resulting session
cookies are saved as auth state and reused until they expire.`,
	Example: `
  # Prompt for the password and store it
  goclockin auth login --email ana@example.com

  # Non-interactive
  pass show factorial | goclockin auth login --email ana@example.com --password-stdin

  # SSO login in a browser
  goclockin auth login --browser
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if authLoginBrowser {
			return runBrowserLogin()
		}
		return runPasswordLogin(cmd)
	},
}

func runPasswordLogin(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	email, err := resolveAccountEmail(authLoginEmail)
	if err != nil {
		return err
	}
	password, err := readPassword(os.Stdin, os.Stderr, authLoginPasswordStdin)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.RefreshCredentials(ctx, email, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	fmt.Printf("Logged in as %s. Credentials stored in %s\n", email, a.credentials.Dir())
	return nil
}

func runBrowserLogin() error {
	stateFile, err := resolveDefaultAuthStatePath(authLoginStateFile)
	if err != nil {
		return err
	}
	profileDir, isTempProfile, err := resolveProfileDir(authLoginProfileDir)
	if err != nil {
		return err
	}
	if isTempProfile {
		defer os.RemoveAll(profileDir)
	}

	_, signInURL, host, err := resolveFactorialURLs(authLoginURL)
	if err != nil {
		return err
	}

	if err := ensureParentDir(stateFile, 0o700); err != nil {
		return err
	}
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return fmt.Errorf("create profile directory %q: %w", profileDir, err)
	}

	allocOptions := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", false),
		chromedp.UserDataDir(profileDir),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("new-window", true),
		chromedp.Flag("restore-last-session", false),
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
	}
	if strings.TrimSpace(authLoginBrowserBin) != "" {
		allocOptions = append(allocOptions, chromedp.ExecPath(strings.TrimSpace(authLoginBrowserBin)))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOptions...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(ctx,
		network.Enable(),
		chromedp.Navigate(signInURL),
	); err != nil {
		return fmt.Errorf("open browser and navigate failed: %w", err)
	}

	fmt.Println("Complete the Factorial login in the opened browser.")
	fmt.Printf("Waiting for the Factorial session (timeout: %s)...\n", authLoginTimeout)
	waitCtx, waitCancel := context.WithTimeout(ctx, authLoginTimeout)
	defer waitCancel()
	if host, err = waitForSessionCookies(waitCtx, signInURL, host, authLoginDebugCookies); err != nil {
		return err
	}

	allCookies, err := getBrowserCookies(ctx)
	if err != nil {
		return fmt.Errorf("read browser cookies failed: %w", err)
	}

	// The email is optional for SSO; the saved session then serves any account.
	email, _ := resolveAccountEmail(authLoginEmail)
	state := factorial.AuthState{
		Email:     email,
		CSRFToken: readCSRFToken(ctx),
		Cookies:   filterCookiesForHost(allCookies, host),
	}
	if err := factorial.SaveAuthState(stateFile, state); err != nil {
		return err
	}
	if _, err := state.SessionCookie(host); err != nil {
		return fmt.Errorf("extract session cookie from %q: %w", stateFile, err)
	}

	if authLoginSkipVerify {
		fmt.Printf("Auth state saved: %s\n", stateFile)
		fmt.Println("Session cookie is present.")
		return nil
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	verifyCtx, verifyCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer verifyCancel()
	if err := a.gateway.Resume(verifyCtx, state); err != nil {
		return fmt.Errorf("auth verification failed: %w", err)
	}
	if state.Email != "" {
		if err := saveAccountEmail(state.Email); err != nil {
			return err
		}
	}

	fmt.Printf("Auth state saved: %s\n", stateFile)
	fmt.Printf("Auth verification successful. Employee id: %d\n", a.gateway.Session().EmployeeID())
	return nil
}

// waitForSessionCookies polls the browser until the user has left the
// sign-in page with a Factorial session cookie set, and returns the cookie
// host.
func waitForSessionCookies(ctx context.Context, signInURL, preferredHost string, debug bool) (string, error) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastURL := signInURL

	for {
		var currentURL string
		if err := chromedp.Run(ctx, chromedp.Location(&currentURL)); err == nil && strings.TrimSpace(currentURL) != "" {
			lastURL = currentURL
		}

		cookies, err := getBrowserCookies(ctx)
		if debug {
			if err != nil {
				fmt.Printf("[auth-debug] url=%s cookie-read-error=%v\n", lastURL, err)
			} else {
				fmt.Printf("[auth-debug] url=%s %s\n", lastURL, summarizeCookieInventory(cookies))
			}
		}
		if err == nil && !onSignInPage(lastURL) && hasRequiredSessionCookies(cookies, "") {
			detectedHost := findSessionCookieHost(cookies)
			if detectedHost == "" {
				detectedHost = preferredHost
			}
			return detectedHost, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf(
					"timed out waiting for the Factorial session; finish login in browser and retry (or increase --timeout). last URL: %s",
					lastURL,
				)
			}
			return "", fmt.Errorf("waiting for Factorial login interrupted: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func onSignInPage(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return true
	}
	return strings.HasPrefix(parsed.Path, "/users/sign_in") || strings.HasPrefix(parsed.Path, "/users/auth")
}

func readCSRFToken(ctx context.Context) string {
	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var token string
	var ok bool
	if err := chromedp.Run(readCtx,
		chromedp.AttributeValue(`meta[name="csrf-token"]`, "content", &token, &ok, chromedp.ByQuery),
	); err != nil || !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func hasRequiredSessionCookies(cookies []*network.Cookie, host string) bool {
	filterByHost := strings.TrimSpace(host) != ""
	for _, cookie := range cookies {
		if cookie == nil {
			continue
		}
		if filterByHost && !factorialCookieDomainMatches(cookie.Domain, host) {
			continue
		}
		if cookie.Name == factorial.SessionCookieName && strings.TrimSpace(cookie.Value) != "" {
			return true
		}
	}
	return false
}

func findSessionCookieHost(cookies []*network.Cookie) string {
	hosts := make([]string, 0, 1)
	for _, cookie := range cookies {
		if cookie == nil || cookie.Name != factorial.SessionCookieName || strings.TrimSpace(cookie.Value) == "" {
			continue
		}
		host := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cookie.Domain)), ".")
		if host != "" {
			hosts = append(hosts, host)
		}
	}
	if len(hosts) == 0 {
		return ""
	}
	// Prefer the most specific domain.
	sort.Slice(hosts, func(i, j int) bool { return len(hosts[i]) > len(hosts[j]) })
	return hosts[0]
}

func getBrowserCookies(ctx context.Context) ([]*network.Cookie, error) {
	chromeCtx := chromedp.FromContext(ctx)
	if chromeCtx == nil || chromeCtx.Browser == nil {
		return nil, errors.New("browser context not available for cookie read")
	}
	browserExecutorCtx := cdp.WithExecutor(ctx, chromeCtx.Browser)
	return storage.GetCookies().Do(browserExecutorCtx)
}

func summarizeCookieInventory(cookies []*network.Cookie) string {
	if len(cookies) == 0 {
		return "cookies=0"
	}

	byDomain := make(map[string][]string)
	for _, cookie := range cookies {
		if cookie == nil {
			continue
		}
		domain := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cookie.Domain)), ".")
		if domain == "" {
			domain = "<empty-domain>"
		}
		name := strings.TrimSpace(cookie.Name)
		if name == "" {
			continue
		}
		byDomain[domain] = append(byDomain[domain], name)
	}

	domains := make([]string, 0, len(byDomain))
	for domain := range byDomain {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	parts := make([]string, 0, len(domains))
	for _, domain := range domains {
		names := byDomain[domain]
		sort.Strings(names)
		names = uniqueStrings(names)
		parts = append(parts, fmt.Sprintf("%s=[%s]", domain, strings.Join(names, ",")))
	}

	return fmt.Sprintf("cookies=%d domains{%s}", len(cookies), strings.Join(parts, "; "))
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	last := ""
	for i, value := range values {
		if i == 0 || value != last {
			out = append(out, value)
		}
		last = value
	}
	return out
}

func filterCookiesForHost(cookies []*network.Cookie, host string) []factorial.StateCookie {
	out := make([]factorial.StateCookie, 0, len(cookies))
	for _, cookie := range cookies {
		if cookie == nil {
			continue
		}
		if !factorialCookieDomainMatches(cookie.Domain, host) {
			continue
		}
		out = append(out, factorial.StateCookie{
			Name:   cookie.Name,
			Value:  cookie.Value,
			Domain: cookie.Domain,
			Path:   cookie.Path,
		})
	}
	return out
}

func factorialCookieDomainMatches(cookieDomain, targetHost string) bool {
	cookieDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cookieDomain)), ".")
	targetHost = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(targetHost)), ".")
	return cookieDomain == targetHost || strings.HasSuffix(targetHost, "."+cookieDomain)
}

func init() {
	authCmd.AddCommand(authLoginCmd)

	authLoginCmd.Flags().StringVar(&authLoginEmail, "email", "", "Factorial account email (default: account.email from config)")
	authLoginCmd.Flags().BoolVar(&authLoginPasswordStdin, "password-stdin", false, "Read the password from stdin")
	authLoginCmd.Flags().BoolVar(&authLoginBrowser, "browser", false, "Log in through a visible browser (SSO) and save the session cookies")
	authLoginCmd.Flags().StringVar(&authLoginURL, "url", "", "Override Factorial URL from config")
	authLoginCmd.Flags().StringVar(&authLoginStateFile, "state-file", "", "Path to save auth state JSON (default: <credentials.dir>/factorial-auth-state.json)")
	authLoginCmd.Flags().StringVar(&authLoginProfileDir, "profile-dir", "", "Browser profile directory (optional; default is a fresh temporary profile per run)")
	authLoginCmd.Flags().StringVar(&authLoginBrowserBin, "browser-bin", "", "Optional browser binary path (Chrome/Chromium)")
	authLoginCmd.Flags().DurationVar(&authLoginTimeout, "timeout", 10*time.Minute, "Maximum wait time for successful browser login")
	authLoginCmd.Flags().BoolVar(&authLoginDebugCookies, "debug-cookies", false, "Print cookie names/domains while waiting for login detection")
	authLoginCmd.Flags().BoolVar(&authLoginSkipVerify, "skip-verify", false, "Skip the Factorial API check after saving auth state")
}
