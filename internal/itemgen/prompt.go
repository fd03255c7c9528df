package itemgen

import (
	"fmt"
	"strings"
)

const systemPrompt = `You write assessment items for a course quiz.

Rules:
- Write a single item that assesses the given learning objective at the requested difficulty.
- Ground the item in the course context when it is provided. Do not invent facts that contradict it.
- The stem must be clear and self-contained.
- multiple_choice: exactly 4 distinct options, exactly one correct. Distractors should reflect common misconceptions.
- true_false: the options are exactly "True" and "False"; the stem is a statement.
- short_answer: no options. Set answer_type to integer, decimal or fraction for numeric answers (simplest form), otherwise text.
- fill_blank: no options. The stem contains the marker ____ exactly once; the answer fills it.
- The explanation says briefly why the answer is correct.
- Do not repeat any item from the "already written" list.`

// buildUserMessage constructs the user message from Input and Config limits.
func buildUserMessage(in Input, cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Objective: %s\n", in.Objective)
	fmt.Fprintf(&b, "Kind: %s\n", in.Kind)
	fmt.Fprintf(&b, "Difficulty: %s\n", in.Difficulty)

	if in.Customization != "" {
		fmt.Fprintf(&b, "Instructor notes: %s\n", in.Customization)
	}

	b.WriteString("\nCourse context:\n")
	b.WriteString(buildContext(in.Passages, cfg.MaxPassages, cfg.MaxPassageChars))

	b.WriteString("\n\nAlready written for this objective:\n")
	b.WriteString(buildDedup(in.PriorItems, cfg.MaxPriorItems))

	return b.String()
}

// buildContext formats passages for the prompt, keeping the first max and
// truncating each to maxChars. Returns "None" without passages.
func buildContext(passages []string, max, maxChars int) string {
	if len(passages) == 0 {
		return "None"
	}
	if max > 0 && len(passages) > max {
		passages = passages[:max]
	}

	var b strings.Builder
	for i, p := range passages {
		p = strings.TrimSpace(p)
		if maxChars > 0 && len(p) > maxChars {
			p = strings.TrimSpace(p[:maxChars]) + "..."
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, p)
	}
	return strings.TrimRight(b.String(), "\n")
}
