package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show generated item and job journal counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		questions, err := s.Questions().Count(ctx)
		if err != nil {
			return fmt.Errorf("count questions: %w", err)
		}
		counts, err := s.Jobs().JobCounts(ctx)
		if err != nil {
			return fmt.Errorf("count jobs: %w", err)
		}

		fmt.Printf("Generated items: %d\n\n", questions)
		fmt.Println("Jobs")
		fmt.Println(strings.Repeat("─", 24))
		for _, status := range []string{"queued", "running", "completed", "failed"} {
			fmt.Printf("%-12s  %8d\n", status, counts[status])
		}
		return nil
	},
}
