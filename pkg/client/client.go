package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Client provides HTTP client functionality to communicate with a
// running marketd supervisor.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:9650/api",
		Timeout: 10 * time.Second,
	}
}

// New creates a new marketd API client
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:9650/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the supervisor is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Supervisor unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Status fetches the calendar phase and per-process desired-vs-observed state.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := c.getJSON(ctx, c.baseURL+"/status", &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Calendar fetches the active trading calendar.
func (c *Client) Calendar(ctx context.Context) (Calendar, error) {
	var cal Calendar
	if err := c.getJSON(ctx, c.baseURL+"/calendar", &cal); err != nil {
		return Calendar{}, err
	}
	return cal, nil
}

// Recover asks the supervisor to run a synchronous recovery pass,
// converging every process to its phase-derived desired state.
func (c *Client) Recover(ctx context.Context) error {
	c.logger.Debug("Requesting recovery run")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recover", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.handleErrorResponse(resp)
}

// AuditRecent fetches up to limit recent audit records, newest first.
// limit <= 0 uses the server default.
func (c *Client) AuditRecent(ctx context.Context, limit int) ([]AuditRecord, error) {
	url := c.baseURL + "/audit/recent"
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}
	var recs []AuditRecord
	if err := c.getJSON(ctx, url, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := c.handleErrorResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse maps non-2xx responses to errors.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er ErrorResponse
	if json.Unmarshal(b, &er) == nil && er.Error != "" {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, er.Error)
	}
	return fmt.Errorf("server error (%d)", resp.StatusCode)
}
