package splunk

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type MockRoundTripper struct {
	RoundTripFunc func(req *http.Request) (*http.Response, error)
}

func (m *MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.RoundTripFunc(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newMockClient(fn func(req *http.Request) (*http.Response, error)) *Client {
	return NewClient("https://search.example.com:8089/", "tok",
		WithHTTPClient(&http.Client{Transport: &MockRoundTripper{RoundTripFunc: fn}}),
		WithRateLimit(0, 0),
		WithRetryBackoff(time.Millisecond),
	)
}

func TestGetJSON(t *testing.T) {
	tests := []struct {
		name      string
		responses []*http.Response
		netErr    error
		wantCalls int32
		wantErr   bool
	}{
		{
			name:      "Success",
			responses: []*http.Response{jsonResponse(200, `{"event_count": 3}`)},
			wantCalls: 1,
		},
		{
			name:      "RetryOn5xx",
			responses: []*http.Response{jsonResponse(503, "busy"), jsonResponse(200, `{"event_count": 3}`)},
			wantCalls: 2,
		},
		{
			name:      "RetryOn429",
			responses: []*http.Response{jsonResponse(429, "slow down"), jsonResponse(200, `{"event_count": 3}`)},
			wantCalls: 2,
		},
		{
			name:      "GiveUpAfterRetries",
			responses: []*http.Response{jsonResponse(500, "a"), jsonResponse(500, "b"), jsonResponse(500, "c")},
			wantCalls: 3,
			wantErr:   true,
		},
		{
			name:      "NoRetryOn4xx",
			responses: []*http.Response{jsonResponse(404, "missing")},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "DecodeError",
			responses: []*http.Response{jsonResponse(200, "not json")},
			wantCalls: 1,
			wantErr:   true,
		},
		{
			name:      "NetworkError",
			netErr:    errors.New("connection refused"),
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newMockClient(func(req *http.Request) (*http.Response, error) {
				n := calls.Add(1)
				if got := req.Header.Get("Authorization"); got != "Bearer tok" {
					t.Errorf("Authorization = %q", got)
				}
				if !strings.HasPrefix(req.URL.String(), "https://search.example.com:8089/services/") {
					t.Errorf("unexpected URL %s", req.URL)
				}
				if tt.netErr != nil {
					return nil, tt.netErr
				}
				return tt.responses[n-1], nil
			})

			var dest summaryResponse
			err := client.getJSON(context.Background(), "/services/x", nil, &dest)
			if (err != nil) != tt.wantErr {
				t.Errorf("getJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if !tt.wantErr && dest.EventCount != 3 {
				t.Errorf("EventCount = %d", dest.EventCount)
			}
		})
	}
}

func TestAPIErrorTruncatesBody(t *testing.T) {
	client := newMockClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(400, strings.Repeat("x", 2000)), nil
	})

	err := client.postForm(context.Background(), jobsPath, nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 400 || len(apiErr.Body) != maxErrorBody {
		t.Errorf("unexpected APIError %d with %d byte body", apiErr.StatusCode, len(apiErr.Body))
	}
}

func TestPostFormIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newMockClient(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		if req.Method != http.MethodPost {
			t.Errorf("Method = %s", req.Method)
		}
		if ct := req.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		return jsonResponse(503, "busy"), nil
	})

	if err := client.postForm(context.Background(), jobsPath, nil, nil); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("POST retried %d times", calls.Load())
	}
}

func TestPostFormSendsEncodedBody(t *testing.T) {
	client := newMockClient(func(req *http.Request) (*http.Response, error) {
		if ct := req.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		data, _ := io.ReadAll(req.Body)
		if got := string(data); got != "search=search+index%3Dmain" {
			t.Errorf("body = %q", got)
		}
		return jsonResponse(201, `{"sid":"1"}`), nil
	})

	form := url.Values{"search": {"search index=main"}}
	if err := client.postForm(context.Background(), jobsPath, form, nil); err != nil {
		t.Fatalf("postForm: %v", err)
	}
}

func TestBackoffDelay(t *testing.T) {
	client := NewClient("http://x", "t", WithRetryBackoff(100*time.Millisecond))

	if got := client.backoffDelay(1, nil); got != 100*time.Millisecond {
		t.Errorf("attempt 1 = %v", got)
	}
	if got := client.backoffDelay(2, nil); got != 200*time.Millisecond {
		t.Errorf("attempt 2 = %v", got)
	}
	retryAfter := &APIError{StatusCode: 429, retryAfter: "3"}
	if got := client.backoffDelay(1, retryAfter); got != 3*time.Second {
		t.Errorf("Retry-After = %v", got)
	}
}

func TestSavedSearches(t *testing.T) {
	client := newMockClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != savedSearchesPath {
			t.Errorf("Path = %s", req.URL.Path)
		}
		if req.URL.Query().Get("search") != "orders" {
			t.Errorf("search = %q", req.URL.Query().Get("search"))
		}
		return jsonResponse(200, `{"entry":[{"name":"S_DVM_ORDERS"},{"name":"orders_by_region"},{"name":"S_DVM_ITEMS"}]}`), nil
	})

	names, err := client.SavedSearches(context.Background(), "orders")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "S_DVM_ORDERS,orders_by_region" {
		t.Errorf("SavedSearches = %v", names)
	}
	if client.BaseURL() != "https://search.example.com:8089" {
		t.Errorf("BaseURL = %q", client.BaseURL())
	}
}
