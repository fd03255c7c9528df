package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/abhisek/quizforge/internal/events"
	"github.com/abhisek/quizforge/internal/itemgen"
)

func TestEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf, false)

	stream := []events.Event{
		{Type: events.TypeConnected},
		{Type: events.TypeBatchStarted, Payload: map[string]any{"batchId": "b1", "totalQuestions": 2}},
		{Type: events.TypeProgress, UnitID: "u1", Payload: map[string]any{"stage": "started", "attempt": 1}},
		{Type: events.TypeTextChunk, UnitID: "u1", Payload: map[string]any{"text": "{\"stem\":"}},
		{Type: events.TypeCompleted, UnitID: "u1", Payload: map[string]any{
			"artifactId": "q1",
			"source":     itemgen.SourceTemplate,
			"item": &itemgen.Item{
				Kind:    itemgen.KindTrueFalse,
				Stem:    "True or false: mitosis yields two cells.",
				Choices: []string{"True", "False"},
				Answer:  "True",
			},
		}},
		{Type: events.TypeError, UnitID: "u2", Payload: map[string]any{"reason": "generation_failed", "message": "model refused", "attempts": 3}},
	}
	for _, ev := range stream {
		if p.Print(ev) {
			t.Fatalf("%s should not end the batch", ev.Type)
		}
	}
	done := p.Print(events.Event{Type: events.TypeBatchComplete, Payload: map[string]any{
		"batchId": "b1", "totalQuestions": 2, "totalGenerated": 1, "totalFailed": 1, "durationMs": 12,
	}})
	if !done {
		t.Fatal("batch-complete should end the batch")
	}

	out := buf.String()
	for _, want := range []string{
		"Generating 2 items",
		"True or false: mitosis yields two cells.",
		"a) True",
		"Answer: True",
		"#2",
		"generation_failed after 3 attempts: model refused",
		"1/2 generated, 1 failed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "started") {
		t.Errorf("progress should be hidden without verbose:\n%s", out)
	}
}
