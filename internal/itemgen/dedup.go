package itemgen

import (
	"fmt"
	"strings"
)

// DedupValidator rejects items whose stem repeats a prior item.
type DedupValidator struct{}

func (v *DedupValidator) Name() string { return "dedup" }

func (v *DedupValidator) Validate(item *Item, in Input) *ValidationError {
	stem := normalize(item.Stem)
	for _, prior := range in.PriorItems {
		if normalize(prior) == stem {
			return &ValidationError{
				Validator: v.Name(),
				Message:   "stem repeats an existing item",
				Retryable: true,
			}
		}
	}
	return nil
}

// buildDedup formats prior items for the prompt, respecting the max limit.
// Returns "None" if there are no prior items.
func buildDedup(prior []string, max int) string {
	if len(prior) == 0 {
		return "None"
	}

	// Keep only the most recent N items.
	if max > 0 && len(prior) > max {
		prior = prior[len(prior)-max:]
	}

	var b strings.Builder
	for i, q := range prior {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return strings.TrimRight(b.String(), "\n")
}
