package itemgen

import (
	"fmt"
	"strings"
)

// ChoiceValidator enforces the kind-specific shape of an item: the number
// of choices, their distinctness, and that exactly one of them is correct.
type ChoiceValidator struct{}

func (v *ChoiceValidator) Name() string { return "choices" }

func (v *ChoiceValidator) Validate(item *Item, _ Input) *ValidationError {
	fail := func(format string, args ...any) *ValidationError {
		return &ValidationError{
			Validator: v.Name(),
			Message:   fmt.Sprintf(format, args...),
			Retryable: true,
		}
	}

	switch item.Kind {
	case KindMultipleChoice:
		if len(item.Choices) != 4 {
			return fail("multiple choice must have exactly 4 choices, got %d", len(item.Choices))
		}
		return v.exactlyOneCorrect(item, fail)

	case KindTrueFalse:
		if len(item.Choices) != 2 {
			return fail("true/false must have exactly 2 choices, got %d", len(item.Choices))
		}
		for _, c := range item.Choices {
			if !strings.EqualFold(c, "true") && !strings.EqualFold(c, "false") {
				return fail("true/false choice %q is neither True nor False", c)
			}
		}
		return v.exactlyOneCorrect(item, fail)

	case KindShortAnswer:
		if len(item.Choices) > 0 {
			return fail("short answer must have no choices")
		}

	case KindFillBlank:
		if len(item.Choices) > 0 {
			return fail("fill in the blank must have no choices")
		}
		if n := strings.Count(item.Stem, BlankMarker); n != 1 {
			return fail("stem must contain the blank marker %q exactly once, found %d", BlankMarker, n)
		}
	}
	return nil
}

func (v *ChoiceValidator) exactlyOneCorrect(item *Item, fail func(string, ...any) *ValidationError) *ValidationError {
	seen := make(map[string]bool, len(item.Choices))
	for i, c := range item.Choices {
		key := normalize(c)
		if key == "" {
			return fail("choice %d is empty", i+1)
		}
		if seen[key] {
			return fail("duplicate choice %q", c)
		}
		seen[key] = true
	}

	answer := normalize(item.Answer)
	correct := 0
	for _, c := range item.Choices {
		if normalize(c) == answer {
			correct++
		}
	}
	if correct != 1 {
		return fail("answer %q must match exactly one choice, matched %d", item.Answer, correct)
	}
	return nil
}

// normalize folds case and whitespace for comparisons.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
