package llm

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MockResponse is a canned response for the MockProvider.
type MockResponse struct {
	Content json.RawMessage
	Usage   Usage
	Err     error

	// Chunks overrides how Content is split when streamed. When empty the
	// content is streamed in mockChunkSize pieces.
	Chunks []string

	// Delay is waited before the response is produced.
	Delay time.Duration
}

const mockChunkSize = 32

// MockProvider is a deterministic Provider and Streamer for testing.
// It returns canned responses in FIFO order and records all requests.
// With an empty queue every call fails with ErrProviderUnavailable.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Generate returns the next canned response or ErrProviderUnavailable if
// the queue is empty.
func (m *MockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := m.next(ctx, req)
	if err != nil {
		return nil, err
	}
	return mockResponse(resp), nil
}

// GenerateStream delivers the next canned response as deltas before
// returning it.
func (m *MockProvider) GenerateStream(ctx context.Context, req Request, deltas chan<- string) (*Response, error) {
	resp, err := m.next(ctx, req)
	if err != nil {
		return nil, err
	}
	chunks := resp.Chunks
	if len(chunks) == 0 {
		chunks = splitChunks(string(resp.Content), mockChunkSize)
	}
	for _, c := range chunks {
		if err := sendDelta(ctx, deltas, c); err != nil {
			return nil, err
		}
	}
	return mockResponse(resp), nil
}

func (m *MockProvider) next(ctx context.Context, req Request) (MockResponse, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	if len(m.responses) == 0 {
		m.mu.Unlock()
		return MockResponse{}, &ErrProviderUnavailable{}
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	m.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-ctx.Done():
			return MockResponse{}, ctx.Err()
		}
	}
	if resp.Err != nil {
		return MockResponse{}, resp.Err
	}
	return resp, nil
}

func mockResponse(r MockResponse) *Response {
	return &Response{
		Content:    r.Content,
		Usage:      r.Usage,
		Model:      "mock",
		StopReason: "end",
	}
}

func splitChunks(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// ModelID returns "mock".
func (m *MockProvider) ModelID() string {
	return "mock"
}

// AddResponse appends a canned response to the queue.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount returns the number of calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
