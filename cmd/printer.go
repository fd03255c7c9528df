package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/quizforge/internal/events"
	"github.com/abhisek/quizforge/internal/itemgen"
)

var (
	colorAccent  = lipgloss.Color("#8B5CF6")
	colorSuccess = lipgloss.Color("#22C55E")
	colorError   = lipgloss.Color("#F43F5E")
	colorDim     = lipgloss.Color("#94A3B8")
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	stemStyle    = lipgloss.NewStyle().Bold(true)
)

type completedPayload struct {
	ArtifactID string        `json:"artifactId"`
	Item       *itemgen.Item `json:"item"`
	Source     string        `json:"source"`
}

type errorPayload struct {
	Reason   string `json:"reason"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

type batchPayload struct {
	BatchID        string `json:"batchId"`
	TotalQuestions int    `json:"totalQuestions"`
	TotalGenerated int    `json:"totalGenerated"`
	TotalFailed    int    `json:"totalFailed"`
	DurationMs     int64  `json:"durationMs"`
}

type progressPayload struct {
	Stage    string `json:"stage"`
	Attempt  int    `json:"attempt"`
	Passages int    `json:"passages"`
}

// eventPrinter renders a session's event stream for a terminal.
type eventPrinter struct {
	w       io.Writer
	verbose bool
	labels  map[string]int
	chars   map[string]int
}

func newEventPrinter(w io.Writer, verbose bool) *eventPrinter {
	return &eventPrinter{w: w, verbose: verbose, labels: map[string]int{}, chars: map[string]int{}}
}

// decodePayload converts an in-process or JSON-decoded payload into dst.
func decodePayload(p any, dst any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (p *eventPrinter) label(unitID string) string {
	n, ok := p.labels[unitID]
	if !ok {
		n = len(p.labels) + 1
		p.labels[unitID] = n
	}
	return fmt.Sprintf("#%d", n)
}

// Print writes one event and reports whether it ended the batch.
func (p *eventPrinter) Print(ev events.Event) bool {
	switch ev.Type {
	case events.TypeBatchStarted:
		var b batchPayload
		_ = decodePayload(ev.Payload, &b)
		fmt.Fprintln(p.w, headingStyle.Render(fmt.Sprintf("Generating %d items", b.TotalQuestions)))

	case events.TypeProgress:
		if !p.verbose {
			return false
		}
		var pr progressPayload
		_ = decodePayload(ev.Payload, &pr)
		line := fmt.Sprintf("%s %s (attempt %d)", p.label(ev.UnitID), pr.Stage, pr.Attempt)
		if pr.Stage == "context" {
			line = fmt.Sprintf("%s context: %d passages", p.label(ev.UnitID), pr.Passages)
		}
		fmt.Fprintln(p.w, dimStyle.Render(line))

	case events.TypeTextChunk:
		var c struct {
			Text  string `json:"text"`
			Reset bool   `json:"reset"`
		}
		_ = decodePayload(ev.Payload, &c)
		if c.Reset {
			p.chars[ev.UnitID] = 0
		}
		p.chars[ev.UnitID] += len(c.Text)

	case events.TypeCompleted:
		var c completedPayload
		_ = decodePayload(ev.Payload, &c)
		p.printItem(ev.UnitID, c)

	case events.TypeError:
		var e errorPayload
		_ = decodePayload(ev.Payload, &e)
		fmt.Fprintf(p.w, "%s %s %s\n", failStyle.Render("✗"), p.label(ev.UnitID),
			fmt.Sprintf("%s after %d attempts: %s", e.Reason, e.Attempts, e.Message))

	case events.TypeBatchComplete:
		var b batchPayload
		_ = decodePayload(ev.Payload, &b)
		fmt.Fprintln(p.w)
		summary := fmt.Sprintf("Batch %s: %d/%d generated, %d failed in %dms",
			b.BatchID, b.TotalGenerated, b.TotalQuestions, b.TotalFailed, b.DurationMs)
		if b.TotalFailed > 0 {
			fmt.Fprintln(p.w, failStyle.Render(summary))
		} else {
			fmt.Fprintln(p.w, okStyle.Render(summary))
		}
		return true
	}
	return false
}

func (p *eventPrinter) printItem(unitID string, c completedPayload) {
	if c.Item == nil {
		fmt.Fprintf(p.w, "%s %s (no item)\n", okStyle.Render("✓"), p.label(unitID))
		return
	}
	it := c.Item
	meta := fmt.Sprintf("[%s, %s, %s]", it.Kind, it.Difficulty, c.Source)
	if n := p.chars[unitID]; n > 0 && p.verbose {
		meta = fmt.Sprintf("[%s, %s, %s, %d chars streamed]", it.Kind, it.Difficulty, c.Source, n)
	}
	fmt.Fprintf(p.w, "\n%s %s %s\n", okStyle.Render("✓"), p.label(unitID), dimStyle.Render(meta))
	fmt.Fprintln(p.w, stemStyle.Render(it.Stem))
	for i, choice := range it.Choices {
		fmt.Fprintf(p.w, "  %c) %s\n", 'a'+rune(i), choice)
	}
	fmt.Fprintf(p.w, "Answer: %s\n", it.Answer)
	if it.Explanation != "" {
		fmt.Fprintln(p.w, dimStyle.Render(strings.TrimSpace(it.Explanation)))
	}
}
