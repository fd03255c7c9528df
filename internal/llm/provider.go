package llm

import (
	"context"
	"encoding/json"
)

// Provider is the core abstraction for LLM interaction.
// Consumers call Generate with a Request and receive structured JSON.
type Provider interface {
	// Generate sends a prompt to the LLM and returns a structured response.
	// When the request's Schema is set the provider uses its native
	// structured output mechanism and validates the result against it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Streamer is implemented by providers that can emit partial output while
// a response is being produced.
//
// GenerateStream pushes text deltas into deltas as they arrive and returns
// the complete, validated response once the stream ends. The channel is
// owned by the caller: implementations never close it, and they stop
// sending when ctx is done.
type Streamer interface {
	GenerateStream(ctx context.Context, req Request, deltas chan<- string) (*Response, error)
}

// AsStreamer reports whether p can stream.
func AsStreamer(p Provider) (Streamer, bool) {
	s, ok := p.(Streamer)
	return s, ok
}

// sendDelta delivers one delta, giving up when ctx ends.
func sendDelta(ctx context.Context, deltas chan<- string, text string) error {
	if deltas == nil || text == "" {
		return nil
	}
	select {
	case deltas <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request describes what to send to the LLM.
type Request struct {
	// System is the system prompt. Sets the LLM's role and constraints.
	System string

	// Messages is the conversation history. Item generation is single-turn,
	// so this normally holds one user message.
	Messages []Message

	// Schema is the JSON Schema the response must conform to.
	// When nil, the response Content is raw text as json.RawMessage.
	Schema *Schema

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int

	// Temperature controls randomness. Range: 0.0 - 1.0.
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the LLM.
type Schema struct {
	// Name identifies this schema (tool name for Anthropic, schema name for
	// OpenAI). Kebab-case, e.g. "quiz-item".
	Name string

	// Description is sent to the LLM to guide generation.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the LLM's output.
type Response struct {
	// Content is the generated output. With a Schema this is the validated
	// JSON object; otherwise the raw text.
	Content json.RawMessage

	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason is normalized to "end", "max_tokens" or "error".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// generateStream streams through p when it can, and otherwise falls back
// to a single Generate call whose content is delivered as one delta.
func generateStream(ctx context.Context, p Provider, req Request, deltas chan<- string) (*Response, error) {
	if s, ok := AsStreamer(p); ok {
		return s.GenerateStream(ctx, req, deltas)
	}
	resp, err := p.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := sendDelta(ctx, deltas, string(resp.Content)); err != nil {
		return nil, err
	}
	return resp, nil
}
