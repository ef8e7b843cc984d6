// Package httputil provides HTTP client abstractions for testability.
package httputil

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
)

// Client abstracts HTTP operations for testability.
// Use http.DefaultClient via NewStandardClient for production; MockClient for testing.
type Client interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Get issues a GET for url through c, bound to ctx for cancellation.
func Get(ctx context.Context, c Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// StandardClient wraps *http.Client to implement Client.
type StandardClient struct {
	*http.Client
}

// NewStandardClient creates a new StandardClient wrapping the given http.Client.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{Client: c}
}

// Do sends an HTTP request.
func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

// MockClient provides a testable Client implementation. Responses may be
// registered per URL or queued in order; recorded requests can be inspected
// afterwards.
type MockClient struct {
	mu          sync.Mutex
	DoFunc      func(req *http.Request) (*http.Response, error)
	Requests    []*http.Request
	byURL       map[string]*MockResponse
	queue       []*MockResponse
	queueIdx    int
	DefaultErr  error
	DefaultCode int
}

// MockResponse defines a canned HTTP response for testing.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	Err        error
}

// NewMockClient creates a new mock HTTP client.
func NewMockClient() *MockClient {
	return &MockClient{byURL: make(map[string]*MockResponse)}
}

// Respond registers a canned response for an exact URL.
func (m *MockClient) Respond(url string, statusCode int, body []byte) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byURL[url] = &MockResponse{StatusCode: statusCode, Body: body, Headers: make(http.Header)}
	return m
}

// RespondWithHeaders registers a canned response with headers for an exact URL.
func (m *MockClient) RespondWithHeaders(url string, statusCode int, body []byte, headers http.Header) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byURL[url] = &MockResponse{StatusCode: statusCode, Body: body, Headers: headers}
	return m
}

// FailWith registers an error result for an exact URL.
func (m *MockClient) FailWith(url string, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byURL[url] = &MockResponse{Err: err}
	return m
}

// Enqueue appends a response returned to requests with no per-URL match,
// in FIFO order.
func (m *MockClient) Enqueue(statusCode int, body []byte) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, &MockResponse{StatusCode: statusCode, Body: body, Headers: make(http.Header)})
	return m
}

// Do records the request and returns the matching canned response.
func (m *MockClient) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.DoFunc != nil {
		return m.DoFunc(req)
	}
	if m.DefaultErr != nil {
		return nil, m.DefaultErr
	}

	resp := m.byURL[req.URL.String()]
	if resp == nil && m.queueIdx < len(m.queue) {
		resp = m.queue[m.queueIdx]
		m.queueIdx++
	}
	if resp == nil {
		code := m.DefaultCode
		if code == 0 {
			code = http.StatusNotFound
		}
		resp = &MockResponse{StatusCode: code, Headers: make(http.Header)}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(bytes.NewReader(resp.Body)),
		Header:     resp.Headers,
		Request:    req,
	}, nil
}

// RequestCount returns the number of recorded requests.
func (m *MockClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// RequestedURLs returns the URLs of all recorded requests in order.
func (m *MockClient) RequestedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	urls := make([]string, len(m.Requests))
	for i, r := range m.Requests {
		urls[i] = r.URL.String()
	}
	return urls
}

// Reset clears all recorded requests and registered responses.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = nil
	m.byURL = make(map[string]*MockResponse)
	m.queue = nil
	m.queueIdx = 0
	m.DefaultErr = nil
	m.DoFunc = nil
}
