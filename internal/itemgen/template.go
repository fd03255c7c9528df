package itemgen

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// TemplateGenerator builds items from fixed templates without any external
// call. Output is a pure function of the input's objective, kind,
// difficulty and customization, so the same request always yields the
// same item.
type TemplateGenerator struct {
	validators []Validator
}

// NewTemplateGenerator returns a template generator that checks its output
// with the structural, choice and answer-format validators. Templates can
// legitimately repeat, so dedup is not applied.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{
		validators: []Validator{
			&StructuralValidator{},
			&ChoiceValidator{},
			&AnswerFormatValidator{},
		},
	}
}

var distractors = []string{
	"It only applies in situations unrelated to the course material",
	"It is a common misconception the course explicitly refutes",
	"None of the concepts covered in this unit describe it",
	"It depends entirely on factors outside the scope of the objective",
}

func (g *TemplateGenerator) Generate(ctx context.Context, in Input, chunks chan<- Chunk) (*Item, error) {
	objective := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(in.Objective), ".?!"))
	if objective == "" {
		return nil, fmt.Errorf("template: objective is empty")
	}
	seed := templateSeed(in)
	term := keyTerm(objective)
	if term == "" {
		term = objective
	}

	item := &Item{
		Kind:       in.Kind,
		Difficulty: in.Difficulty,
		AnswerType: AnswerTypeText,
		Source:     SourceTemplate,
		Explanation: fmt.Sprintf("This item restates the objective %q; review the related course material.",
			objective),
	}

	switch in.Kind {
	case KindMultipleChoice:
		item.Stem = fmt.Sprintf("Which statement best reflects the objective %q?", objective)
		item.Answer = objective
		choices := make([]string, 0, 4)
		start := int(seed % uint64(len(distractors)))
		for i := 0; len(choices) < 3; i++ {
			choices = append(choices, distractors[(start+i)%len(distractors)])
		}
		pos := int(seed % 4)
		choices = append(choices[:pos], append([]string{objective}, choices[pos:]...)...)
		item.Choices = choices

	case KindTrueFalse:
		item.Stem = fmt.Sprintf("True or false: %s.", upperFirst(objective))
		item.Choices = []string{"True", "False"}
		item.Answer = "True"

	case KindShortAnswer:
		item.Stem = fmt.Sprintf("Name the key term in the objective %q.", strings.Replace(objective, term, BlankMarker, 1))
		item.Answer = term

	case KindFillBlank:
		item.Stem = fmt.Sprintf("Complete the statement: %s.", upperFirst(strings.Replace(objective, term, BlankMarker, 1)))
		item.Answer = term

	default:
		return nil, fmt.Errorf("template: unsupported kind %q", in.Kind)
	}

	if err := runValidators(g.validators, item, in); err != nil {
		return nil, err
	}
	if err := emit(ctx, chunks, Chunk{Text: item.Stem, Final: true}); err != nil {
		return nil, err
	}
	return item, nil
}

func templateSeed(in Input) uint64 {
	h := fnv.New64a()
	for _, part := range []string{in.Objective, string(in.Kind), string(in.Difficulty), in.Customization} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// keyTerm picks the longest word of s, the first one on ties.
func keyTerm(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	best := ""
	for _, w := range words {
		if len([]rune(w)) > len([]rune(best)) {
			best = w
		}
	}
	return best
}

func upperFirst(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}
