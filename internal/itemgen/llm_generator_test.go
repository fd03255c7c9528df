package itemgen

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/quizforge/internal/llm"
)

func testInput(kind Kind) Input {
	return Input{
		UnitID:      "unit-1",
		ObjectiveID: "obj-1",
		Objective:   "Explain how plants convert light energy into chemical energy",
		Kind:        kind,
		Difficulty:  DifficultyMedium,
		Passages:    []string{"Photosynthesis takes place in the chloroplasts."},
	}
}

func mcItemJSON() json.RawMessage {
	return json.RawMessage(`{
		"stem": "Where does photosynthesis take place?",
		"choices": ["Mitochondria", "Chloroplasts", "Nucleus", "Ribosomes"],
		"answer": "Chloroplasts",
		"answer_type": "text",
		"explanation": "Chloroplasts hold the chlorophyll that captures light."
	}`)
}

// plainProvider hides the mock's streaming support.
type plainProvider struct{ mock *llm.MockProvider }

func (p plainProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return p.mock.Generate(ctx, req)
}

func (p plainProvider) ModelID() string { return p.mock.ModelID() }

// cancelAfterProvider cancels the caller's context once the response is ready.
type cancelAfterProvider struct {
	plainProvider
	cancel context.CancelFunc
}

func (p cancelAfterProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := p.plainProvider.Generate(ctx, req)
	p.cancel()
	return resp, err
}

func TestGenerate_FinalChunkNotDelivered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mock := llm.NewMockProvider(llm.MockResponse{Content: mcItemJSON()})
	gen := New(cancelAfterProvider{plainProvider{mock}, cancel}, DefaultConfig())

	// Nobody reads chunks, so the final chunk can only fail on ctx.
	item, err := gen.Generate(ctx, testInput(KindMultipleChoice), make(chan Chunk))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if item != nil {
		t.Errorf("expected no item, got %+v", item)
	}
}

func TestGenerate_MultipleChoice(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: mcItemJSON()})
	gen := New(plainProvider{mock}, DefaultConfig())

	item, err := gen.Generate(context.Background(), testInput(KindMultipleChoice), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Answer != "Chloroplasts" {
		t.Errorf("unexpected answer %q", item.Answer)
	}
	if item.Kind != KindMultipleChoice || item.Difficulty != DifficultyMedium {
		t.Errorf("kind/difficulty not taken from input: %+v", item)
	}
	if item.Source != SourceLLM {
		t.Errorf("expected source llm, got %q", item.Source)
	}

	call := mock.Calls[0]
	if call.Schema != ItemSchema {
		t.Error("expected the item schema on the request")
	}
	if !strings.Contains(call.Messages[0].Content, "chloroplasts") {
		t.Error("expected passages in the prompt")
	}
}

func TestGenerate_StreamsChunks(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: mcItemJSON()})
	gen := New(mock, DefaultConfig())

	chunks := make(chan Chunk, 64)
	item, err := gen.Generate(context.Background(), testInput(KindMultipleChoice), chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(chunks)

	var text strings.Builder
	var got []Chunk
	for c := range chunks {
		got = append(got, c)
		text.WriteString(c.Text)
	}
	if len(got) < 2 {
		t.Fatalf("expected several chunks, got %d", len(got))
	}
	for _, c := range got[:len(got)-1] {
		if c.Final {
			t.Fatal("only the last chunk may be final")
		}
	}
	if !got[len(got)-1].Final {
		t.Fatal("expected a final chunk")
	}
	if text.String() != string(mcItemJSON()) {
		t.Errorf("streamed text does not match the response")
	}
	if item.Stem == "" {
		t.Error("expected a stem")
	}
}

func TestGenerate_NonStreamingEmitsStemAsFinalChunk(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: mcItemJSON()})
	gen := New(plainProvider{mock}, DefaultConfig())

	chunks := make(chan Chunk, 4)
	item, err := gen.Generate(context.Background(), testInput(KindMultipleChoice), chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := <-chunks
	if !c.Final || c.Text != item.Stem {
		t.Errorf("unexpected chunk %+v", c)
	}
}

func TestGenerate_ShortAnswerKeepsAnswerType(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(`{
		"stem": "How many chloroplast membranes are there?",
		"choices": [],
		"answer": "2",
		"answer_type": "integer",
		"explanation": "An inner and an outer membrane."
	}`)})
	gen := New(mock, DefaultConfig())

	item, err := gen.Generate(context.Background(), testInput(KindShortAnswer), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.AnswerType != AnswerTypeInteger {
		t.Errorf("expected integer answer type, got %q", item.AnswerType)
	}
	if item.Choices != nil {
		t.Errorf("expected nil choices, got %v", item.Choices)
	}
}

func TestGenerate_ValidationFailure(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(`{
		"stem": "Where does photosynthesis take place?",
		"choices": ["Chloroplasts", "Chloroplasts", "Nucleus", "Ribosomes"],
		"answer": "Chloroplasts",
		"answer_type": "text",
		"explanation": "x"
	}`)})
	gen := New(mock, DefaultConfig())

	_, err := gen.Generate(context.Background(), testInput(KindMultipleChoice), nil)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if verr.Validator != "choices" {
		t.Errorf("expected choices validator, got %q", verr.Validator)
	}
}

func TestGenerate_DuplicateRejected(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: mcItemJSON()})
	gen := New(mock, DefaultConfig())

	in := testInput(KindMultipleChoice)
	in.PriorItems = []string{"Where does photosynthesis take place?"}
	_, err := gen.Generate(context.Background(), in, nil)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Validator != "dedup" {
		t.Fatalf("expected dedup failure, got %v", err)
	}
}

func TestGenerate_ProviderError(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("down")}})
	gen := New(mock, DefaultConfig())

	_, err := gen.Generate(context.Background(), testInput(KindTrueFalse), make(chan Chunk, 4))
	var unavail *llm.ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected wrapped ErrProviderUnavailable, got %v", err)
	}
}

func TestGenerate_MalformedJSON(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage(`{"stem": `)})
	gen := New(plainProvider{mock}, DefaultConfig())

	if _, err := gen.Generate(context.Background(), testInput(KindTrueFalse), nil); err == nil {
		t.Fatal("expected parse error")
	}
}
