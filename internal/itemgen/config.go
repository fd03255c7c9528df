package itemgen

// Config controls the behavior of the LLMGenerator.
type Config struct {
	// Validators is the ordered list of validators to run on every
	// generated item. The first failure stops the chain.
	Validators []Validator

	// MaxTokens is the token budget for the LLM response.
	MaxTokens int

	// Temperature controls LLM output randomness (0.0-1.0).
	Temperature float64

	// MaxPriorItems caps how many prior stems go into the prompt.
	MaxPriorItems int

	// MaxPassages and MaxPassageChars cap the context put into the prompt.
	MaxPassages     int
	MaxPassageChars int

	// ChunkBuffer sizes the delta channel between the provider and the
	// generator.
	ChunkBuffer int
}

// DefaultConfig returns a Config with the standard validator chain
// and recommended defaults.
func DefaultConfig() Config {
	return Config{
		Validators:      DefaultValidators(),
		MaxTokens:       768,
		Temperature:     0.7,
		MaxPriorItems:   8,
		MaxPassages:     4,
		MaxPassageChars: 600,
		ChunkBuffer:     16,
	}
}

// DefaultValidators is the full validator chain applied to model output.
func DefaultValidators() []Validator {
	return []Validator{
		&StructuralValidator{},
		&ChoiceValidator{},
		&AnswerFormatValidator{},
		&DedupValidator{},
	}
}
