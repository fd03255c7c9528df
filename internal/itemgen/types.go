package itemgen

// Kind is the archetype of a quiz item.
type Kind string

const (
	// KindMultipleChoice has exactly 4 distinct choices, one of which is
	// the answer.
	KindMultipleChoice Kind = "multiple_choice"

	// KindTrueFalse has the choices "True" and "False".
	KindTrueFalse Kind = "true_false"

	// KindShortAnswer has no choices; the answer is typed by AnswerType.
	KindShortAnswer Kind = "short_answer"

	// KindFillBlank has a stem containing BlankMarker exactly once.
	KindFillBlank Kind = "fill_blank"
)

// Kinds lists every supported item kind.
var Kinds = []Kind{KindMultipleChoice, KindTrueFalse, KindShortAnswer, KindFillBlank}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// BlankMarker marks the gap in a fill-in-the-blank stem.
const BlankMarker = "____"

// Difficulty is the requested difficulty of an item.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a supported difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// AnswerType describes how a short answer is written.
type AnswerType string

const (
	AnswerTypeInteger  AnswerType = "integer"  // e.g. "623", "-15"
	AnswerTypeDecimal  AnswerType = "decimal"  // e.g. "3.75", "0.5"
	AnswerTypeFraction AnswerType = "fraction" // e.g. "3/4", "7/2"
	AnswerTypeText     AnswerType = "text"     // a word or short phrase
)

// Source records which path produced an item.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceTemplate Source = "template"
)

// Item is a generated quiz item ready to persist.
type Item struct {
	Kind Kind `json:"kind"`

	// Stem is the question prompt shown to the learner.
	Stem string `json:"stem"`

	// Choices is set for multiple_choice and true_false only.
	Choices []string `json:"choices,omitempty"`

	// Answer is the canonical correct answer. For choice kinds it is the
	// text of the correct choice.
	Answer string `json:"answer"`

	AnswerType  AnswerType `json:"answerType"`
	Explanation string     `json:"explanation"`
	Difficulty  Difficulty `json:"difficulty"`
	Source      Source     `json:"source"`
}

// Input is everything a generator needs to produce one item.
type Input struct {
	UnitID      string
	ObjectiveID string

	// Objective is the text of the learning objective being assessed.
	Objective string

	Kind       Kind
	Difficulty Difficulty

	// Passages are retrieved course excerpts, most relevant first.
	Passages []string

	// Customization is free-text guidance from the instructor.
	Customization string

	// PriorItems holds stems already generated for the objective. New
	// items must not repeat them.
	PriorItems []string
}

// Chunk is a piece of partial output emitted while an item is generated.
type Chunk struct {
	Text string

	// Final is set on the last chunk of a successful generation.
	Final bool

	// Reset tells consumers to discard text received so far because the
	// generator switched to another path.
	Reset bool
}
