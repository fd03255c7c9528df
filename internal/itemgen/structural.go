package itemgen

import (
	"fmt"
	"strings"
)

const (
	maxStemLen        = 1000
	maxExplanationLen = 2000
)

// StructuralValidator checks that required fields are present, within
// length limits, and have valid enum values.
type StructuralValidator struct{}

func (v *StructuralValidator) Name() string { return "structural" }

func (v *StructuralValidator) Validate(item *Item, _ Input) *ValidationError {
	fail := func(format string, args ...any) *ValidationError {
		return &ValidationError{
			Validator: v.Name(),
			Message:   fmt.Sprintf(format, args...),
			Retryable: true,
		}
	}

	if !item.Kind.Valid() {
		return fail("unknown kind %q", item.Kind)
	}
	if !item.Difficulty.Valid() {
		return fail("unknown difficulty %q", item.Difficulty)
	}
	if strings.TrimSpace(item.Stem) == "" {
		return fail("stem is empty")
	}
	if len(item.Stem) > maxStemLen {
		return fail("stem exceeds %d characters", maxStemLen)
	}
	if strings.TrimSpace(item.Answer) == "" {
		return fail("answer is empty")
	}
	if len(item.Explanation) > maxExplanationLen {
		return fail("explanation exceeds %d characters", maxExplanationLen)
	}
	return nil
}
