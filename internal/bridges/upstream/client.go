package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/whep-gateway/internal/device"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "whep-gateway"

	// maxResponseSize bounds any upstream response body (1MB).
	maxResponseSize = 1 << 20

	// errorSnippetSize is how much of an error body is kept for logs.
	errorSnippetSize = 256
)

// ErrUnexpectedStatus is wrapped by every error caused by a non-2xx reply.
var ErrUnexpectedStatus = errors.New("upstream: unexpected status")

// StatusError describes a non-2xx reply.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Is makes errors.Is(err, ErrUnexpectedStatus) match.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Client talks to the device-control API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	timeout   time.Duration // bounds every call except GenerateStream
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client, typically one from NewOAuthHTTPClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds device listing, close and existence checks.
// Stream generation is left to the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing upstream base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:   u,
		http:      &http.Client{},
		userAgent: defaultUserAgent,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ device.Client = (*Client)(nil)

type deviceDTO struct {
	DeviceID string `json:"device_id"`
	Handle   string `json:"handle"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
}

type listResponse struct {
	Devices []deviceDTO `json:"devices"`
}

// ListDevices implements device.Client. Entries without a device_id are skipped;
// a missing handle defaults to the device_id.
func (c *Client) ListDevices(ctx context.Context) ([]device.Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/devices", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var body listResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&body); err != nil {
		return nil, fmt.Errorf("upstream: decoding device list: %w", err)
	}

	devices := make([]device.Descriptor, 0, len(body.Devices))
	for _, d := range body.Devices {
		if d.DeviceID == "" {
			continue
		}
		handle := d.Handle
		if handle == "" {
			handle = d.DeviceID
		}
		devices = append(devices, device.Descriptor{ID: d.DeviceID, Handle: handle, Name: d.Name, Kind: d.Kind})
	}
	return devices, nil
}

// GenerateStream implements device.Client. Only ctx bounds the call:
// devices may take a long time to produce an answer.
func (c *Client) GenerateStream(ctx context.Context, d device.Descriptor, offer string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, sessionsPath(d.Handle), "application/sdp", strings.NewReader(offer))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", err
	}

	answer, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("upstream: reading answer: %w", err)
	}
	if len(answer) == 0 {
		return "", fmt.Errorf("upstream: empty answer for device %s", d.ID)
	}
	return string(answer), nil
}

// CloseStream implements device.Client.
func (c *Client) CloseStream(ctx context.Context, d device.Descriptor, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodDelete, sessionPath(d.Handle, sessionID), "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// SessionExists implements device.Client.
func (c *Client) SessionExists(ctx context.Context, d device.Descriptor, sessionID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, sessionPath(d.Handle, sessionID), "", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := checkStatus(resp); err != nil {
		return false, err
	}
	return true, nil
}

func sessionsPath(handle string) string {
	return "/devices/" + url.PathEscape(handle) + "/sessions"
}

func sessionPath(handle, sessionID string) string {
	return sessionsPath(handle) + "/" + url.PathEscape(sessionID)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	u := c.baseURL.JoinPath(path)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("upstream: building %s %s: %w", method, path, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// checkStatus returns a *StatusError for non-2xx replies, draining a
// short snippet of the body for diagnostics.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetSize)) //nolint:errcheck // diagnostics only
	return &StatusError{
		Method: resp.Request.Method,
		Path:   resp.Request.URL.Path,
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(snippet)),
	}
}
