package procmgr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPConfig configures the REST backend.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// HTTPClient talks to a process-manager daemon over JSON REST:
//
//	GET  {base}/status?name=<name>   -> {"name":..., "running":bool}
//	POST {base}/start?name=<name>
//	POST {base}/stop?name=<name>
//	POST {base}/restart?name=<name>
//
// Non-2xx responses carry {"error": "..."}; a 404 maps to ErrUnknownProcess.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

type statusResp struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

type errorResp struct {
	Error string `json:"error"`
}

// NewHTTP builds an HTTPClient. Timeout defaults to 5s.
func NewHTTP(cfg HTTPConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("procmgr: http backend requires base_url")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("procmgr: invalid base_url %q: %w", cfg.BaseURL, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: base,
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Status(ctx context.Context, name string) (State, error) {
	u := fmt.Sprintf("%s/status?name=%s", c.baseURL, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return StateUnknown, fmt.Errorf("build status request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return StateUnknown, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return StateUnknown, fmt.Errorf("%w: %s", ErrUnknownProcess, name)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StateUnknown, fmt.Errorf("%w: %s", ErrRejected, readError(resp.Body, resp.StatusCode))
	}
	var st statusResp
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return StateUnknown, fmt.Errorf("decode status for %s: %w", name, err)
	}
	if st.Running {
		return StateRunning, nil
	}
	return StateStopped, nil
}

func (c *HTTPClient) Apply(ctx context.Context, name string, action Action) error {
	u := fmt.Sprintf("%s/%s?name=%s", c.baseURL, string(action), url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", action, err)
	}
	c.logger.Debug("applying action", "name", name, "action", action)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownProcess, name)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s", ErrRejected, readError(resp.Body, resp.StatusCode))
	}
	return nil
}

// readError extracts the JSON error body, falling back to the status code.
func readError(r io.Reader, code int) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var er errorResp
	if json.Unmarshal(b, &er) == nil && er.Error != "" {
		return er.Error
	}
	return fmt.Sprintf("status %d", code)
}
