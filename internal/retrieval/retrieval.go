// Package retrieval ranks indexed course passages against a query.
package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/abhisek/quizforge/internal/store"
)

// DefaultLimit is used when Filters.Limit is not positive.
const DefaultLimit = 4

// Passage is a ranked excerpt.
type Passage struct {
	MaterialID string
	Ordinal    int
	Text       string
	Score      float64
}

// Filters narrows a retrieval.
type Filters struct {
	QuizID string
	Limit  int
}

// Retriever returns passages relevant to a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, f Filters) ([]Passage, error)
}

// PassageSource loads the candidate passages of a quiz.
type PassageSource interface {
	Passages(ctx context.Context, quizID string) ([]store.PassageRecord, error)
}

// KeywordRetriever scores passages by overlap with the query's terms.
type KeywordRetriever struct {
	source PassageSource
}

func NewKeywordRetriever(source PassageSource) *KeywordRetriever {
	return &KeywordRetriever{source: source}
}

// Retrieve returns up to f.Limit passages sharing at least one term with
// query. Ties keep material and ordinal order.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string, f Filters) ([]Passage, error) {
	if f.QuizID == "" {
		return nil, fmt.Errorf("retrieve: quiz id required")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	terms := Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	records, err := r.source.Passages(ctx, f.QuizID)
	if err != nil {
		return nil, fmt.Errorf("load passages: %w", err)
	}

	var ranked []Passage
	for _, rec := range records {
		score := score(terms, rec.Text)
		if score == 0 {
			continue
		}
		ranked = append(ranked, Passage{
			MaterialID: rec.MaterialID,
			Ordinal:    rec.Ordinal,
			Text:       rec.Text,
			Score:      score,
		})
	}

	slices.SortStableFunc(ranked, func(a, b Passage) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.MaterialID, b.MaterialID); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// score is the fraction of distinct query terms found in text, plus a
// small bonus for repeated hits.
func score(terms map[string]bool, text string) float64 {
	counts := make(map[string]int)
	for _, w := range words(text) {
		if terms[w] {
			counts[w]++
		}
	}
	if len(counts) == 0 {
		return 0
	}
	hits := 0
	for _, c := range counts {
		hits += c
	}
	coverage := float64(len(counts)) / float64(len(terms))
	return coverage + 0.01*float64(min(hits-len(counts), 10))
}

// Terms returns the distinct significant words of s.
func Terms(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range words(s) {
		if len(w) < 3 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "any": true, "can": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"how": true, "its": true, "why": true, "what": true, "when": true,
	"with": true, "that": true, "this": true, "from": true, "they": true,
	"into": true, "than": true, "then": true, "them": true, "these": true,
	"those": true, "which": true, "their": true, "there": true, "about": true,
	"would": true, "should": true, "could": true, "between": true, "each": true,
	"explain": true, "describe": true, "understand": true, "identify": true,
}
