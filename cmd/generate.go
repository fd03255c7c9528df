package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/quizforge/internal/app"
	"github.com/abhisek/quizforge/internal/itemgen"
	"github.com/abhisek/quizforge/internal/orchestrator"
	"github.com/abhisek/quizforge/internal/queue"
	"github.com/abhisek/quizforge/internal/store"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate quiz items in-process and print them as they stream",
	Long: `Run one generation batch without the HTTP server.

Either pass --quiz to use an existing quiz, or --title with one or more
--objective flags to create one. --material files are indexed first so
their passages can be used as context.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("quiz", "", "Existing quiz ID")
	generateCmd.Flags().String("title", "", "Title for a new quiz")
	generateCmd.Flags().StringArray("objective", nil, "Objective text for a new quiz (repeatable)")
	generateCmd.Flags().StringArray("material", nil, "Course material file to index before generating (repeatable)")
	generateCmd.Flags().String("kind", string(itemgen.KindMultipleChoice), "Item kind: multiple_choice, true_false, short_answer, fill_blank")
	generateCmd.Flags().String("difficulty", string(itemgen.DifficultyMedium), "Difficulty: easy, medium or hard")
	generateCmd.Flags().Int("count", 1, "Items per objective")
	generateCmd.Flags().String("customize", "", "Free-text guidance passed to the generator")
	generateCmd.Flags().BoolP("verbose", "v", false, "Show progress events and debug logs")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	quizID, _ := cmd.Flags().GetString("quiz")
	title, _ := cmd.Flags().GetString("title")
	objectives, _ := cmd.Flags().GetStringArray("objective")
	materials, _ := cmd.Flags().GetStringArray("material")
	kind, _ := cmd.Flags().GetString("kind")
	difficulty, _ := cmd.Flags().GetString("difficulty")
	count, _ := cmd.Flags().GetInt("count")
	customize, _ := cmd.Flags().GetString("customize")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	if quizID == "" && len(objectives) == 0 {
		return fmt.Errorf("either --quiz or at least one --objective is required")
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	rt, err := openRuntime(cmd, level)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	quiz, err := resolveQuiz(ctx, rt.store, quizID, title, objectives)
	if err != nil {
		return err
	}

	a, err := app.New(ctx, rt.cfg, rt.store, rt.log)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(runCtx) }()
	defer func() {
		cancel()
		<-runErr
	}()

	if len(materials) > 0 {
		if err := indexMaterials(ctx, a, rt.store, quiz.ID, materials); err != nil {
			return err
		}
	}

	var items []orchestrator.ItemRequest
	for _, o := range quiz.Objectives {
		for i := 0; i < count; i++ {
			items = append(items, orchestrator.ItemRequest{
				ObjectiveID:   o.ID,
				Kind:          itemgen.Kind(kind),
				Difficulty:    itemgen.Difficulty(difficulty),
				Customization: customize,
			})
		}
	}

	sub, err := a.Hub().Attach("cli-" + uuid.NewString())
	if err != nil {
		return err
	}
	defer a.Hub().Detach(sub.ID)

	if _, err := a.Orchestrator().StartBatch(ctx, sub.ID, items); err != nil {
		return err
	}

	p := newEventPrinter(cmd.OutOrStdout(), verbose)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			return errors.New("event stream closed before the batch completed")
		case ev := <-sub.Outbound():
			if p.Print(ev) {
				return nil
			}
		}
	}
}

func resolveQuiz(ctx context.Context, st *store.Store, quizID, title string, objectives []string) (*store.QuizRecord, error) {
	if quizID != "" {
		q, err := st.Catalog().GetQuiz(ctx, quizID)
		if err != nil {
			return nil, fmt.Errorf("load quiz: %w", err)
		}
		if q == nil {
			return nil, fmt.Errorf("quiz %q not found", quizID)
		}
		return q, nil
	}
	if strings.TrimSpace(title) == "" {
		title = "Untitled quiz"
	}
	q, err := st.Catalog().CreateQuiz(ctx, title, objectives)
	if err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}
	fmt.Printf("Created quiz %s\n", q.ID)
	return q, nil
}

// indexMaterials stores each file as a material, schedules indexing and
// waits for every indexing job to finish.
func indexMaterials(ctx context.Context, a *app.App, st *store.Store, quizID string, paths []string) error {
	var jobs []queue.JobID
	for _, path := range paths {
		// #nosec G304 -- paths come from the operator's flags
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read material: %w", err)
		}
		m, err := st.Materials().Create(ctx, quizID, filepath.Base(path), string(data))
		if err != nil {
			return fmt.Errorf("store material: %w", err)
		}
		id, scheduled, err := a.Queue().EnqueueMaterial(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("schedule indexing: %w", err)
		}
		if scheduled {
			jobs = append(jobs, id)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for len(jobs) > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("indexing materials: %w", ctx.Err())
		case <-ticker.C:
		}
		pending := jobs[:0]
		for _, id := range jobs {
			info, ok := a.Queue().Job(id)
			switch {
			case !ok || info.Status == queue.StatusCompleted:
			case info.Status == queue.StatusFailed:
				return fmt.Errorf("indexing job %s failed: %s", id, info.LastError)
			default:
				pending = append(pending, id)
			}
		}
		jobs = pending
	}
	return nil
}
