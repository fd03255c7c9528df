package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abhisek/quizforge/internal/store"
)

func TestMockProvider_ReturnsCanedResponses(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"a":1}`), Usage: Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}},
		MockResponse{Content: json.RawMessage(`{"b":2}`)},
	)

	resp1, err := mock.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "first"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp1.Content) != `{"a":1}` {
		t.Fatalf("expected {\"a\":1}, got %s", resp1.Content)
	}
	if resp1.Usage.InputTokens != 10 {
		t.Fatalf("expected 10 input tokens, got %d", resp1.Usage.InputTokens)
	}
	if resp1.StopReason != "end" {
		t.Fatalf("expected stop reason 'end', got %q", resp1.StopReason)
	}

	resp2, err := mock.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "second"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp2.Content) != `{"b":2}` {
		t.Fatalf("expected {\"b\":2}, got %s", resp2.Content)
	}
}

func TestMockProvider_EmptyQueueReturnsError(t *testing.T) {
	mock := NewMockProvider()
	_, err := mock.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error from empty queue")
	}
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got: %T", err)
	}
}

func TestMockProvider_RecordsCalls(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{}`)},
	)

	req := Request{
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}
	_, _ = mock.Generate(context.Background(), req)

	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount())
	}
	if mock.Calls[0].System != "sys" {
		t.Fatalf("expected system 'sys', got %q", mock.Calls[0].System)
	}
}

func TestMockProvider_ReturnsConfiguredError(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Err: &ErrRateLimit{RetryAfter: 0}},
	)

	_, err := mock.Generate(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got: %T", err)
	}
}

func TestMockProvider_ModelID(t *testing.T) {
	mock := NewMockProvider()
	if mock.ModelID() != "mock" {
		t.Fatalf("expected 'mock', got %q", mock.ModelID())
	}
}

func TestPurposeContext(t *testing.T) {
	ctx := context.Background()
	if p := PurposeFrom(ctx); p != "unknown" {
		t.Fatalf("expected 'unknown', got %q", p)
	}

	ctx = WithPurpose(ctx, "item-gen")
	if p := PurposeFrom(ctx); p != "item-gen" {
		t.Fatalf("expected 'item-gen', got %q", p)
	}
}

func TestUnitContext(t *testing.T) {
	ctx := context.Background()
	if u := UnitFrom(ctx); u != "" {
		t.Fatalf("expected empty unit, got %q", u)
	}
	if WithUnit(ctx, "") != ctx {
		t.Fatal("empty unit id should leave the context untouched")
	}
	ctx = WithUnit(ctx, "u-1")
	if u := UnitFrom(ctx); u != "u-1" {
		t.Fatalf("expected 'u-1', got %q", u)
	}
}

func TestMockProvider_StreamsChunks(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"stem":"x"}`), Chunks: []string{`{"stem"`, `:"x"}`}},
	)

	deltas := make(chan string, 4)
	resp, err := mock.GenerateStream(context.Background(), Request{}, deltas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(deltas)

	var got []string
	for d := range deltas {
		got = append(got, d)
	}
	if len(got) != 2 || got[0]+got[1] != string(resp.Content) {
		t.Fatalf("unexpected deltas %q for content %s", got, resp.Content)
	}
}

func TestMockProvider_StreamSplitsContent(t *testing.T) {
	content := strings.Repeat("a", mockChunkSize*2+1)
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(content)})

	deltas := make(chan string, 8)
	if _, err := mock.GenerateStream(context.Background(), Request{}, deltas); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deltas) != 3 {
		t.Fatalf("expected 3 deltas, got %d", len(deltas))
	}
}

func TestMockProvider_StreamStopsOnCancel(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`), Chunks: []string{"a", "b"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered and never read: the send can only give up via ctx.
	_, err := mock.GenerateStream(ctx, Request{}, make(chan string))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// plainProvider hides the mock's streaming support.
type plainProvider struct{ inner Provider }

func (p plainProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	return p.inner.Generate(ctx, req)
}
func (p plainProvider) ModelID() string { return p.inner.ModelID() }

func TestGenerateStream_FallsBackToGenerate(t *testing.T) {
	p := plainProvider{inner: NewMockProvider(MockResponse{Content: json.RawMessage(`{"ok":true}`)})}
	if _, ok := AsStreamer(p); ok {
		t.Fatal("plainProvider must not be a Streamer")
	}

	deltas := make(chan string, 1)
	resp, err := generateStream(context.Background(), p, Request{}, deltas)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := <-deltas; got != string(resp.Content) {
		t.Fatalf("expected whole content as one delta, got %q", got)
	}
}

func TestTimeoutProvider_ExpiresSlowCall(t *testing.T) {
	mock := NewMockProvider(MockResponse{Content: json.RawMessage(`{}`), Delay: time.Second})
	p := WithTimeout(mock, 10*time.Millisecond)

	_, err := p.Generate(context.Background(), Request{})
	if !IsTimeout(err) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWithTimeout_ZeroIsPassthrough(t *testing.T) {
	mock := NewMockProvider()
	if WithTimeout(mock, 0) != Provider(mock) {
		t.Fatal("expected the unwrapped provider")
	}
	if WithRateLimit(mock, RateLimitConfig{}) != Provider(mock) {
		t.Fatal("expected the unwrapped provider")
	}
}

func TestRateLimitProvider_WaitHonorsContext(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{}`)},
		MockResponse{Content: json.RawMessage(`{}`)},
	)
	p := WithRateLimit(mock, RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("first call should use the burst token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Generate(ctx, Request{}); err == nil {
		t.Fatal("expected the second call to be refused by the limiter")
	}
	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 call to reach the provider, got %d", mock.CallCount())
	}
}

type recordingRepo struct {
	events []store.LLMRequestEventData
}

func (r *recordingRepo) AppendLLMRequest(_ context.Context, data store.LLMRequestEventData) error {
	r.events = append(r.events, data)
	return nil
}

func TestLoggingProvider_RecordsUnitAndStreamFlag(t *testing.T) {
	repo := &recordingRepo{}
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"a":1}`), Usage: Usage{InputTokens: 3, OutputTokens: 4}},
		MockResponse{Err: &ErrProviderUnavailable{Err: errors.New("down")}},
	)
	p := WithLogging(mock, "mock", repo, nil)

	ctx := WithUnit(WithPurpose(context.Background(), "item-gen"), "u-9")
	deltas := make(chan string, 4)
	if _, err := p.(Streamer).GenerateStream(ctx, Request{System: "sys"}, deltas); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Generate(ctx, Request{}); err == nil {
		t.Fatal("expected error")
	}

	if len(repo.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(repo.events))
	}
	first := repo.events[0]
	if !first.Success || !first.Streamed || first.UnitID != "u-9" || first.Purpose != "item-gen" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if first.InputTokens != 3 || first.ResponseBody != `{"a":1}` {
		t.Fatalf("unexpected usage/body: %+v", first)
	}
	if !strings.Contains(first.RequestBody, "[system]") {
		t.Fatalf("request body missing system prompt: %q", first.RequestBody)
	}
	second := repo.events[1]
	if second.Success || second.Streamed || second.ErrorMessage == "" {
		t.Fatalf("unexpected second event: %+v", second)
	}
}

func TestNewProvider_Mock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "mock"

	p, err := NewProvider(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != "mock" {
		t.Fatalf("expected 'mock', got %q", p.ModelID())
	}
	if _, ok := AsStreamer(p); !ok {
		t.Fatal("expected the decorated chain to stream")
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Provider: "nope"}, nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "anthropic without key",
			cfg:     Config{Provider: "anthropic"},
			wantErr: true,
		},
		{
			name:    "anthropic with key",
			cfg:     Config{Provider: "anthropic", Anthropic: AnthropicConfig{APIKey: "sk-test"}},
			wantErr: false,
		},
		{
			name:    "openai without key",
			cfg:     Config{Provider: "openai"},
			wantErr: true,
		},
		{
			name:    "openai with key",
			cfg:     Config{Provider: "openai", OpenAI: OpenAIConfig{APIKey: "sk-test"}},
			wantErr: false,
		},
		{
			name:    "openrouter without key",
			cfg:     Config{Provider: "openrouter"},
			wantErr: true,
		},
		{
			name:    "mock needs no key",
			cfg:     Config{Provider: "mock"},
			wantErr: false,
		},
		{
			name:    "unknown provider",
			cfg:     Config{Provider: "unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
