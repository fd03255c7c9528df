package itemgen

import "fmt"

// Validator checks a generated item for correctness.
// Implementations should be stateless and safe for concurrent use.
type Validator interface {
	// Name returns a short identifier for this validator, e.g.
	// "structural" or "choices".
	Name() string

	// Validate returns nil if the item passes.
	Validate(item *Item, in Input) *ValidationError
}

// ValidationError describes why an item failed validation.
type ValidationError struct {
	Validator string // Name of the validator that failed
	Message   string // Human-readable description of the failure
	Retryable bool   // Whether regeneration is likely to fix this
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validator %q: %s", e.Validator, e.Message)
}

// runValidators applies vs in order and stops at the first failure.
func runValidators(vs []Validator, item *Item, in Input) error {
	for _, v := range vs {
		if verr := v.Validate(item, in); verr != nil {
			return verr
		}
	}
	return nil
}
