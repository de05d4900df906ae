package hubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hubonboard/hubsetup/internal/logging"
	"github.com/hubonboard/hubsetup/internal/version"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultProbeTimeout bounds a single relocation probe
	DefaultProbeTimeout = 2 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for failed requests
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 1 * time.Second

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 30 * time.Second

	// maxBodySize caps the hub info document
	maxBodySize = 1 << 20
)

// HubInfo is the document served at the root of the hub API
type HubInfo struct {
	// Onboarded is true once the hub has finished its initial setup
	Onboarded bool `json:"onboarded"`
}

// Client is an HTTP client for the hub API
type Client struct {
	// BaseURL is the hub API root (e.g., "http://hub.local/")
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for failed requests
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay for exponential backoff
	MaxRetryDelay time.Duration

	// UseExponentialBackoff enables exponential backoff for retries
	UseExponentialBackoff bool
}

// NewClient creates a client for the hub API at address. The address may
// omit the scheme ("hub.local") as REACHABLE_ADDRESS sometimes does.
func NewClient(address string) (*Client, error) {
	baseURL, err := NormalizeBaseURL(address)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL:               baseURL,
		HTTPClient:            &http.Client{Timeout: DefaultTimeout},
		MaxRetries:            DefaultMaxRetries,
		RetryDelay:            DefaultRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		UseExponentialBackoff: true,
	}, nil
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// Ping checks that the hub API answers at all
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.HubInfo(ctx)
	return err
}

// HubInfo retrieves the hub info document, retrying transient failures
func (c *Client) HubInfo(ctx context.Context) (*HubInfo, error) {
	var lastErr error
	currentDelay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, currentDelay); err != nil {
				return nil, lastErr
			}

			if c.UseExponentialBackoff {
				currentDelay *= 2
				if currentDelay > c.MaxRetryDelay {
					currentDelay = c.MaxRetryDelay
				}
			}
		}

		info, err := c.hubInfoAttempt(ctx)
		if err == nil {
			return info, nil
		}

		lastErr = err
		logging.Debug("Hub info request failed",
			zap.String("address", c.BaseURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		// Don't retry non-retryable errors
		if !IsRetryable(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) hubInfoAttempt(ctx context.Context) (*HubInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return nil, NewNetworkError("failed to create GET request", err, c.BaseURL)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, NewNetworkError("GET request failed", err, c.BaseURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), c.BaseURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err, c.BaseURL)
	}

	var info HubInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, NewParseError("failed to parse hub info", err, c.BaseURL)
	}
	return &info, nil
}

// NormalizeBaseURL turns a reachable address into an API root URL with a
// scheme and a trailing slash.
func NormalizeBaseURL(address string) (string, error) {
	raw := strings.TrimSpace(address)
	if raw == "" {
		return "", &APIError{Type: ErrTypeInvalidAddress, Message: "empty hub address"}
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", &APIError{
			Type:    ErrTypeInvalidAddress,
			Message: fmt.Sprintf("invalid hub address %q", address),
			Err:     err,
			Address: address,
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &APIError{
			Type:    ErrTypeInvalidAddress,
			Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
			Address: address,
		}
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}

// Prober performs single-shot hub info requests while the hub is
// relocating. Retries are left to the caller's poll loop.
type Prober struct {
	// Timeout bounds one probe
	Timeout time.Duration

	// HTTPClient is the underlying HTTP client (optional)
	HTTPClient *http.Client
}

// NewProber creates a prober with default settings
func NewProber() *Prober {
	return &Prober{Timeout: DefaultProbeTimeout}
}

// Probe asks the hub at address for its info document once
func (p *Prober) Probe(ctx context.Context, address string) (*HubInfo, error) {
	client, err := NewClient(address)
	if err != nil {
		return nil, err
	}
	client.MaxRetries = 0
	if p.HTTPClient != nil {
		client.HTTPClient = p.HTTPClient
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	info, err := client.HubInfo(ctx)
	logging.LogProbe(client.BaseURL, err)
	return info, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
