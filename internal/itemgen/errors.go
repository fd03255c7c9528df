package itemgen

import "fmt"

// GenerationError is returned when neither the primary generator nor the
// template fallback produced a valid item.
type GenerationError struct {
	Primary  error
	Fallback error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *GenerationError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}
