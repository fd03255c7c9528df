package itemgen

import (
	"context"
	"testing"
)

func TestStart_DeliversChunksThenResult(t *testing.T) {
	g := &scriptedGenerator{
		chunks: []Chunk{{Text: "a"}, {Text: "b"}, {Text: "c", Final: true}},
		item:   validItem(),
	}
	s := Start(context.Background(), g, testInput(KindMultipleChoice), 0)

	var text string
	for c := range s.Chunks() {
		text += c.Text
	}
	if text != "abc" {
		t.Fatalf("expected %q, got %q", "abc", text)
	}

	item, err := s.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item != g.item {
		t.Fatal("expected the generator's item")
	}
}

func TestStart_ResultWithoutChunks(t *testing.T) {
	s := Start(context.Background(), NewTemplateGenerator(), testInput(KindTrueFalse), 4)
	item, err := s.Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Kind != KindTrueFalse {
		t.Errorf("unexpected kind %q", item.Kind)
	}
	if _, open := <-s.Chunks(); !open {
		t.Fatal("expected the buffered chunk before close")
	}
	if _, open := <-s.Chunks(); open {
		t.Fatal("expected chunks to be closed")
	}
}
