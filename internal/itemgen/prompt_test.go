package itemgen

import (
	"strings"
	"testing"
)

func TestBuildUserMessage_MinimalContext(t *testing.T) {
	in := Input{Objective: "Describe the water cycle", Kind: KindTrueFalse, Difficulty: DifficultyEasy}
	msg := buildUserMessage(in, DefaultConfig())

	for _, want := range []string{
		"Objective: Describe the water cycle",
		"Kind: true_false",
		"Difficulty: easy",
		"Course context:\nNone",
		"Already written for this objective:\nNone",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("missing %q in:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Instructor notes") {
		t.Error("instructor notes should be omitted when empty")
	}
}

func TestBuildUserMessage_Customization(t *testing.T) {
	in := Input{Objective: "x", Customization: "Use metric units"}
	msg := buildUserMessage(in, DefaultConfig())
	if !strings.Contains(msg, "Instructor notes: Use metric units") {
		t.Error("expected instructor notes")
	}
}

func TestBuildContext_Limits(t *testing.T) {
	passages := []string{strings.Repeat("a", 20), "second", "third"}
	got := buildContext(passages, 2, 10)

	if strings.Contains(got, "third") {
		t.Error("expected passages beyond the limit to be dropped")
	}
	if !strings.Contains(got, "[1] aaaaaaaaaa...") {
		t.Errorf("expected truncated first passage, got %q", got)
	}
	if !strings.Contains(got, "[2] second") {
		t.Errorf("expected second passage, got %q", got)
	}
}

func TestBuildDedup_KeepsMostRecent(t *testing.T) {
	got := buildDedup([]string{"q1", "q2", "q3"}, 2)
	if strings.Contains(got, "q1") {
		t.Error("oldest prior item should be dropped")
	}
	if !strings.HasPrefix(got, "1. q2") {
		t.Errorf("unexpected output %q", got)
	}
}
