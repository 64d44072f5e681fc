package midjourney

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"

	"imagine/internal/infra"
)

// ErrMissingBaseURL indicates that the client was configured without an endpoint.
var ErrMissingBaseURL = errors.New("midjourney: base url is required")

// Options configures the generation API client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	// BreakerTimeout is how long the submit breaker stays open after tripping.
	BreakerTimeout time.Duration
}

// Client talks to the asynchronous generation endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
	breaker    *gobreaker.CircuitBreaker
}

// StatusError reports a non-2xx answer from the service.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("midjourney: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("midjourney: status %d", e.StatusCode)
}

// NewClient constructs a client with sane defaults and injected dependencies.
// An empty base URL is accepted; HasEndpoint reports it and every call fails
// with ErrMissingBaseURL.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	breakerTimeout := opts.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: httpClient,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "midjourney-submit",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("midjourney: breaker state changed")
		},
	})
	return c
}

// HasEndpoint reports whether the client can perform remote calls.
func (c *Client) HasEndpoint() bool {
	return c.baseURL != ""
}

// BaseURL returns the configured endpoint without trailing slashes.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit issues the initial generation request. composedPrompt already carries
// the aspect ratio token.
func (c *Client) Submit(ctx context.Context, composedPrompt string) (*Response, error) {
	if !c.HasEndpoint() {
		return nil, ErrMissingBaseURL
	}
	query := url.Values{}
	query.Set("prompt", composedPrompt)
	query.Set("usePolling", "true")
	endpoint := c.baseURL + "?" + query.Encode()

	out, err := c.breaker.Execute(func() (any, error) {
		return c.get(ctx, endpoint)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("midjourney: submit: %w", err)
		}
		return nil, err
	}
	resp := out.(*Response)
	c.logger.Debug().
		Str("id", resp.ID).
		Str("status", resp.Status).
		Int("results", len(resp.Results)).
		Msg("midjourney: submitted prompt")
	return resp, nil
}

// Poll fetches the current state of a job from endpoint.
func (c *Client) Poll(ctx context.Context, endpoint string) (*Response, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("midjourney: poll endpoint is required")
	}
	return c.get(ctx, endpoint)
}

// PollEndpoint derives the fallback status URL for a job id.
func (c *Client) PollEndpoint(id string) string {
	if c.baseURL == "" || strings.TrimSpace(id) == "" {
		return ""
	}
	query := url.Values{}
	query.Set("id", strings.TrimSpace(id))
	return c.baseURL + "?" + query.Encode()
}

func (c *Client) get(ctx context.Context, endpoint string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("midjourney: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("midjourney: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("midjourney: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(strings.TrimSpace(string(raw)), 200),
		}
	}
	decoded, err := decodeResponse(raw)
	if err != nil {
		return nil, err
	}
	return decoded, nil
}

// isBreakerSuccess keeps client errors and cancellations from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < 500
	}
	return false
}

// truncate cuts s to at most n bytes without splitting a character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
