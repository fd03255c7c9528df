package itemgen

import "github.com/abhisek/quizforge/internal/llm"

// ItemSchema defines the JSON schema for LLM item generation responses.
// Kind and difficulty are fixed by the request, so the model only fills in
// the content.
var ItemSchema = &llm.Schema{
	Name:        "quiz-item",
	Description: "A single quiz item with its correct answer and explanation",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"stem": map[string]any{
				"type":        "string",
				"description": "The question prompt shown to the learner",
			},
			"choices": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
				},
				"description": "Options for multiple_choice (exactly 4) and true_false (True, False). Empty array otherwise.",
			},
			"answer": map[string]any{
				"type":        "string",
				"description": "The correct answer. For choice kinds: the text of the correct option.",
			},
			"answer_type": map[string]any{
				"type":        "string",
				"enum":        []any{"integer", "decimal", "fraction", "text"},
				"description": "How the answer is written. Use text unless a short answer is numeric.",
			},
			"explanation": map[string]any{
				"type":        "string",
				"description": "Why the answer is correct, grounded in the course context",
			},
		},
		"required":             []any{"stem", "choices", "answer", "answer_type", "explanation"},
		"additionalProperties": false,
	},
}
