package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"goclockin/attendance"
)

var errDaemonUnavailable = errors.New("daemon is not running")

// daemonStatus and daemonOutcome mirror the JSON of the daemon web API.
type daemonStatus struct {
	attendance.Status
	Summary string `json:"summary"`
}

type daemonOutcome struct {
	Result   string       `json:"result"`
	Decision string       `json:"decision"`
	Message  string       `json:"message"`
	ShiftID  string       `json:"shiftId"`
	Warning  string       `json:"warning"`
	Error    string       `json:"error"`
	Status   daemonStatus `json:"status"`
}

type daemonClient struct {
	baseURL    string
	httpClient *http.Client
}

func newDaemonClient(listen string) *daemonClient {
	return &daemonClient{
		baseURL:    "http://" + strings.TrimSpace(listen),
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

func (c *daemonClient) status(ctx context.Context, refresh bool) (daemonStatus, error) {
	path := "/api/status"
	if refresh {
		path += "?refresh=1"
	}
	var out daemonStatus
	err := c.do(ctx, http.MethodGet, path, &out)
	return out, err
}

func (c *daemonClient) post(ctx context.Context, path string) (daemonOutcome, error) {
	var out daemonOutcome
	err := c.do(ctx, http.MethodPost, path, &out)
	return out, err
}

func (c *daemonClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build daemon request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("%w at %s", errDaemonUnavailable, c.baseURL)
		}
		return fmt.Errorf("daemon request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read daemon response: %w", err)
	}
	// Failed outcomes still carry a JSON body.
	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}
