package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL matches the daemon's default listen address and base path.
const DefaultBaseURL = "http://127.0.0.1:7070/api"

// Client provides HTTP client functionality to communicate with a vitesrv daemon
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	// Timeout bounds a whole call. Dev and preview calls last until the
	// server is ready and builds until they finish, so keep it generous.
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 5 * time.Minute,
	}
}

// APIError is returned for every non-2xx response.
type APIError struct {
	Status   int
	Response ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.Response.Error
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "API error (%d): %s", e.Status, msg)
	for _, is := range e.Response.Issues {
		fmt.Fprintf(&b, "; %s: %s", is.Path, is.Message)
	}
	return b.String()
}

// IsNotFound reports whether err is a 404 from the daemon.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusNotFound
}

// New creates a new vitesrv API client
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the daemon is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Procedures(ctx)
	if err != nil {
		c.logger.Debug("Daemon unreachable", "error", err)
		return false
	}
	return true
}

// Procedures lists the procedures the daemon serves.
func (c *Client) Procedures(ctx context.Context) ([]Procedure, error) {
	var out []Procedure
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/procedures", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Call invokes the procedure name (e.g. "vite.dev") with in as JSON input and
// decodes the result into out. in may be nil; out may be nil to discard it.
func (c *Client) Call(ctx context.Context, name string, in, out any) error {
	if name == "" {
		return errors.New("procedure name is required")
	}
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = b
	} else {
		body = []byte("{}")
	}
	url := c.baseURL + "/" + strings.ReplaceAll(name, ".", "/")
	c.logger.Debug("Calling procedure", "procedure", name)
	return c.do(ctx, http.MethodPost, url, body, out)
}

func (c *Client) Dev(ctx context.Context, req DevRequest) (ServerResult, error) {
	var out ServerResult
	err := c.Call(ctx, "vite.dev", req, &out)
	return out, err
}

func (c *Client) Preview(ctx context.Context, req PreviewRequest) (ServerResult, error) {
	var out ServerResult
	err := c.Call(ctx, "vite.preview", req, &out)
	return out, err
}

func (c *Client) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	var out BuildResult
	err := c.Call(ctx, "vite.build", req, &out)
	return out, err
}

// Stop reports whether the server was signalled. Unknown ids yield false, not an error.
func (c *Client) Stop(ctx context.Context, serverID string) (bool, error) {
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.Call(ctx, "vite.stop", map[string]string{"serverId": serverID}, &out); err != nil {
		return false, err
	}
	return out.Success, nil
}

func (c *Client) List(ctx context.Context) ([]Server, error) {
	var out struct {
		Servers []Server `json:"servers"`
	}
	if err := c.Call(ctx, "vite.list", nil, &out); err != nil {
		return nil, err
	}
	return out.Servers, nil
}

func (c *Client) Status(ctx context.Context, serverID string) (StatusResult, error) {
	var out StatusResult
	err := c.Call(ctx, "vite.status", map[string]string{"serverId": serverID}, &out)
	return out, err
}

// do performs HTTP request with common error handling
func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	ae := &APIError{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&ae.Response); err != nil {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode, "error", err)
	}
	c.logger.Debug("API request failed", "error", ae.Response.Error, "status", resp.StatusCode)
	return ae
}
