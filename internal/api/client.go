package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client is a thin gateway to the Workbench API. All operations go through a
// single endpoint as POST requests carrying a group/action envelope; the
// credentials given at construction are injected into every payload. The
// client classifies failures but never retries them.
type Client struct {
	BaseURL    string
	User       string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. The base URL is normalized to end
// in /api.php the way every tool in the original kit expected.
func New(baseURL, user, token string) *Client {
	return &Client{
		BaseURL: NormalizeURL(baseURL),
		User:    user,
		Token:   token,
		Timeout: 30 * time.Second,
	}
}

// NormalizeURL appends /api.php to a bare server URL.
func NormalizeURL(raw string) string {
	raw = strings.TrimRight(raw, "/")
	if strings.HasSuffix(raw, "/api.php") {
		return raw
	}
	return raw + "/api.php"
}

// UIBase returns the server URL without the API suffix, for building links
// into the web interface.
func (c *Client) UIBase() string {
	return strings.TrimRight(strings.TrimSuffix(c.BaseURL, "/api.php"), "/")
}

// envelope is the vendor's response wrapper. Status "1" means success; "0"
// carries an error message even though the HTTP status is 200.
type envelope struct {
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

// call performs one group/action request and decodes the data payload into
// out. A nil out discards the payload.
func (c *Client) call(ctx context.Context, group, action string, data map[string]any, out any) error {
	raw, err := c.callRaw(ctx, group, action, data)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s/%s: decode data: %w", group, action, err)
	}
	return nil
}

// callRaw is call without payload decoding; it returns the raw data member.
func (c *Client) callRaw(ctx context.Context, group, action string, data map[string]any) (json.RawMessage, error) {
	body, err := c.post(ctx, c.payload(group, action, data))
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%s/%s: decode response: %w", group, action, err)
	}
	if env.Status != "" && env.Status != "1" {
		if missingRow(env.Error) {
			return nil, &NotFoundError{What: fmt.Sprintf("%s/%s target", group, action)}
		}
		return nil, &LogicError{Group: group, Action: action, Message: env.Error}
	}
	return env.Data, nil
}

// download performs a request whose response body is a file, not an envelope.
func (c *Client) download(ctx context.Context, group, action string, data map[string]any) ([]byte, error) {
	return c.post(ctx, c.payload(group, action, data))
}

func (c *Client) payload(group, action string, data map[string]any) map[string]any {
	merged := map[string]any{
		"username": c.User,
		"key":      c.Token,
	}
	for k, v := range data {
		merged[k] = v
	}
	return map[string]any{
		"group":  group,
		"action": action,
		"data":   merged,
	}
}

func (c *Client) post(ctx context.Context, payload any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.User, c.Token)
	return c.send(req)
}

// send executes a prepared request and maps the response to the error
// taxonomy: 401/403 -> AuthError, 404 -> NotFoundError, 5xx and network
// failures -> TransientError.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		if isNetworkError(err) {
			return nil, &TransientError{Err: err}
		}
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{What: req.URL.Path}
	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	c.HTTPClient = &http.Client{Timeout: c.Timeout}
	return c.HTTPClient
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// url.Error wraps connection resets and refused connections without
	// implementing net.Error timeouts.
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
