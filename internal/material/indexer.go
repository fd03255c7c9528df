// Package material indexes uploaded course materials into passages.
package material

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/abhisek/quizforge/internal/logger"
	"github.com/abhisek/quizforge/internal/queue"
	"github.com/abhisek/quizforge/internal/store"
)

// DefaultMaxPassageChars bounds passage length when Config leaves it unset.
const DefaultMaxPassageChars = 800

// Config tunes the splitter.
type Config struct {
	MaxPassageChars int
}

// Indexer handles material tasks from the work queue.
type Indexer struct {
	repo store.MaterialRepo
	cfg  Config
	log  *logger.Logger
}

// NewIndexer creates an indexer writing passages through repo.
func NewIndexer(repo store.MaterialRepo, cfg Config, log *logger.Logger) *Indexer {
	if cfg.MaxPassageChars <= 0 {
		cfg.MaxPassageChars = DefaultMaxPassageChars
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Indexer{repo: repo, cfg: cfg, log: log.With("component", "MaterialIndexer")}
}

// Handle indexes the material named by a MaterialTask.
func (ix *Indexer) Handle(ctx context.Context, job queue.JobInfo) error {
	task, ok := job.Task.(queue.MaterialTask)
	if !ok {
		return fmt.Errorf("indexer: unexpected task %T", job.Task)
	}
	return ix.Index(ctx, task.MaterialID)
}

// Index splits a material's content and replaces its passages.
func (ix *Indexer) Index(ctx context.Context, materialID string) error {
	m, err := ix.repo.Get(ctx, materialID)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("material %s not found", materialID)
	}

	passages := Split(m.Content, ix.cfg.MaxPassageChars)
	if err := ix.repo.ReplacePassages(ctx, materialID, passages); err != nil {
		return err
	}
	ix.log.Info("material indexed", "material", materialID, "passages", len(passages))
	return nil
}

func (ix *Indexer) Finished(job queue.JobInfo, err error) {
	if err != nil {
		ix.log.Warn("material indexing failed", "job", job.ID, "attempts", job.Attempt(), "error", err)
	}
}

// Split breaks content into paragraphs separated by blank lines. Paragraphs
// longer than limit are cut at sentence ends, then at spaces, so no passage
// exceeds limit runes unless a single word does.
func Split(content string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxPassageChars
	}
	var out []string
	for _, para := range paragraphs(content) {
		out = append(out, splitLong(para, limit)...)
	}
	return out
}

func paragraphs(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var (
		out []string
		cur []string
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, " "))
			cur = cur[:0]
		}
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		cur = append(cur, strings.Join(strings.Fields(line), " "))
	}
	flush()
	return out
}

func splitLong(para string, limit int) []string {
	if runeLen(para) <= limit {
		return []string{para}
	}

	var (
		out []string
		b   strings.Builder
	)
	for _, sentence := range sentences(para) {
		for _, piece := range splitWords(sentence, limit) {
			sep := 0
			if b.Len() > 0 {
				sep = 1
			}
			if runeLen(b.String())+sep+runeLen(piece) > limit && b.Len() > 0 {
				out = append(out, b.String())
				b.Reset()
				sep = 0
			}
			if sep == 1 {
				b.WriteByte(' ')
			}
			b.WriteString(piece)
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}

// sentences splits after '.', '!' or '?' followed by a space.
func sentences(para string) []string {
	var out []string
	start := 0
	runes := []rune(para)
	for i, r := range runes {
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			out = append(out, strings.TrimSpace(string(runes[start:i+1])))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

// splitWords cuts s into pieces of at most limit runes on word boundaries.
func splitWords(s string, limit int) []string {
	if runeLen(s) <= limit {
		return []string{s}
	}
	var (
		out []string
		cur []string
		n   int
	)
	for _, w := range strings.Fields(s) {
		wl := runeLen(w)
		if n > 0 && n+1+wl > limit {
			out = append(out, strings.Join(cur, " "))
			cur, n = cur[:0], 0
		}
		if n > 0 {
			n++
		}
		cur = append(cur, w)
		n += wl
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

func runeLen(s string) int {
	return len([]rune(s))
}
