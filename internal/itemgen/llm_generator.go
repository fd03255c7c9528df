package itemgen

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abhisek/quizforge/internal/llm"
)

// LLMGenerator implements Generator using the LLM provider. Output is
// streamed when the provider supports it.
type LLMGenerator struct {
	provider llm.Provider
	config   Config
}

// New creates a new LLMGenerator with the given provider and config.
func New(provider llm.Provider, cfg Config) *LLMGenerator {
	return &LLMGenerator{provider: provider, config: cfg}
}

// itemOutput is the raw LLM response before validation.
type itemOutput struct {
	Stem        string   `json:"stem"`
	Choices     []string `json:"choices"`
	Answer      string   `json:"answer"`
	AnswerType  string   `json:"answer_type"`
	Explanation string   `json:"explanation"`
}

// Generate produces a single item for the given input.
func (g *LLMGenerator) Generate(ctx context.Context, in Input, chunks chan<- Chunk) (*Item, error) {
	ctx = llm.WithUnit(llm.WithPurpose(ctx, "item-gen"), in.UnitID)

	req := llm.Request{
		System: systemPrompt,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(in, g.config)},
		},
		Schema:      ItemSchema,
		MaxTokens:   g.config.MaxTokens,
		Temperature: g.config.Temperature,
	}

	resp, streamed, err := g.call(ctx, req, chunks)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}

	var raw itemOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	item := &Item{
		Kind:        in.Kind,
		Stem:        raw.Stem,
		Choices:     raw.Choices,
		Answer:      raw.Answer,
		AnswerType:  AnswerType(raw.AnswerType),
		Explanation: raw.Explanation,
		Difficulty:  in.Difficulty,
		Source:      SourceLLM,
	}
	if len(item.Choices) == 0 {
		item.Choices = nil
	}
	if item.Kind != KindShortAnswer {
		item.AnswerType = AnswerTypeText
	}

	if err := runValidators(g.config.Validators, item, in); err != nil {
		return nil, err
	}

	final := Chunk{Final: true}
	if !streamed {
		final.Text = item.Stem
	}
	if err := emit(ctx, chunks, final); err != nil {
		return nil, err
	}
	return item, nil
}

// call streams through the provider when it can, relaying each delta as a
// chunk. It reports whether any deltas were relayed.
func (g *LLMGenerator) call(ctx context.Context, req llm.Request, chunks chan<- Chunk) (*llm.Response, bool, error) {
	s, ok := llm.AsStreamer(g.provider)
	if !ok || chunks == nil {
		resp, err := g.provider.Generate(ctx, req)
		return resp, false, err
	}

	type result struct {
		resp *llm.Response
		err  error
	}
	deltas := make(chan string, max(g.config.ChunkBuffer, 1))
	done := make(chan result, 1)
	go func() {
		resp, err := s.GenerateStream(ctx, req, deltas)
		close(deltas)
		done <- result{resp, err}
	}()

	relayed := false
	for d := range deltas {
		// Keep draining after ctx ends so the provider never blocks.
		if emit(ctx, chunks, Chunk{Text: d}) == nil {
			relayed = true
		}
	}
	r := <-done
	return r.resp, relayed, r.err
}
