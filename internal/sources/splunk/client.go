// Package splunk counts events through the search platform's asynchronous
// job API: submit a saved search, poll until it finishes, read the results.
package splunk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/j-veylop/pipeline-monitor-tui/internal/logger"
)

const (
	jobsPath          = "/services/search/jobs"
	jobsV2Path        = "/services/search/v2/jobs"
	savedSearchesPath = "/services/saved/searches"

	maxRetries   = 2
	maxErrorBody = 512
)

// APIError is a non-2xx response from the search API.
type APIError struct {
	StatusCode int
	Body       string
	retryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Client talks to the search REST API with bearer auth.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetryBackoff sets the first retry delay for idempotent requests.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.backoff = d
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 5),
		backoff:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, form url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	hasForm := form != nil || method == http.MethodPost
	var body io.Reader
	if hasForm {
		body = bytes.NewBufferString(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if hasForm {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Error("failed to close response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(data)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       text,
			retryAfter: resp.Header.Get("Retry-After"),
		}
	}
	return data, nil
}

// getJSON issues a GET, retrying 429 and 5xx responses.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	var lastErr *APIError
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(c.backoffDelay(attempt, lastErr))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}

		data, err := c.send(ctx, http.MethodGet, path, query, nil)
		if err == nil {
			if err := json.Unmarshal(data, dest); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || (apiErr.StatusCode != http.StatusTooManyRequests && apiErr.StatusCode < 500) {
			return err
		}
		lastErr = apiErr
	}
	return lastErr
}

// postForm issues a single form-encoded POST. Job submission is not idempotent
// and is never retried.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, dest any) error {
	data, err := c.send(ctx, http.MethodPost, path, url.Values{"output_mode": {"json"}}, form)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) backoffDelay(attempt int, lastErr *APIError) time.Duration {
	if lastErr != nil && lastErr.StatusCode == http.StatusTooManyRequests && lastErr.retryAfter != "" {
		if secs, err := strconv.Atoi(lastErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.backoff * time.Duration(1<<(attempt-1))
}

type savedSearchesResponse struct {
	Entry []struct {
		Name string `json:"name"`
	} `json:"entry"`
}

// SavedSearches returns the names of saved searches containing filter.
func (c *Client) SavedSearches(ctx context.Context, filter string) ([]string, error) {
	query := url.Values{
		"output_mode": {"json"},
		"count":       {"0"},
	}
	if filter != "" {
		query.Set("search", filter)
	}

	var resp savedSearchesResponse
	if err := c.getJSON(ctx, savedSearchesPath, query, &resp); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(resp.Entry))
	needle := strings.ToLower(filter)
	for _, e := range resp.Entry {
		if strings.Contains(strings.ToLower(e.Name), needle) {
			names = append(names, e.Name)
		}
	}
	return names, nil
}
