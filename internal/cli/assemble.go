package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"ragctx/internal/usecase"
)

var (
	assembleBudget   int
	assembleOverhead int
	assembleTopK     int
	assembleJSON     bool
)

var assembleCmd = &cobra.Command{
	Use:   "assemble <question>",
	Short: "Print the prompt that would be sent for a question",
	Long: `Retrieve passages for the question and pack as many as fit into the
token budget, in retrieval order. Prints the prompt, or the prompt with its
token accounting as JSON.

Examples:
  ragctx assemble "how hot should green tea be"
  ragctx assemble "how hot should green tea be" -b 4000 --overhead 500 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssemble,
}

func init() {
	rootCmd.AddCommand(assembleCmd)
	assembleCmd.Flags().IntVarP(&assembleBudget, "budget", "b", 0, "token budget (default from config)")
	assembleCmd.Flags().IntVar(&assembleOverhead, "overhead", -1, "tokens reserved for system prompt and answer (default from config)")
	assembleCmd.Flags().IntVarP(&assembleTopK, "top-k", "k", 0, "candidate pool size (default from config)")
	assembleCmd.Flags().BoolVar(&assembleJSON, "json", false, "output prompt and diagnostics as JSON")
}

func runAssemble(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	out := cmd.OutOrStdout()
	query := strings.Join(args, " ")

	p, err := newPipeline(ctx, cfg, GetRootDir())
	if err != nil {
		return err
	}
	defer p.Close()

	budget := cfg.Assemble.Budget
	if assembleBudget > 0 {
		budget = assembleBudget
	}
	overhead := cfg.Assemble.Overhead
	if assembleOverhead >= 0 {
		overhead = assembleOverhead
	}
	topK := cfg.Retrieve.TopK
	if assembleTopK > 0 {
		topK = assembleTopK
	}

	candidates, err := p.retriever.Search(ctx, query, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	prompt, err := p.assembler.Assemble(query, candidates, budget, overhead)
	if err != nil {
		var exceeded *usecase.BudgetExceededError
		if errors.As(err, &exceeded) {
			log.Error("budget too small", "budget", budget, "overhead", overhead, "available", exceeded.Available())
		}
		return err
	}

	if assembleJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(prompt)
	}

	fmt.Fprintln(out, prompt.Prompt)
	log.Info("assembled",
		"included", prompt.Included,
		"considered", prompt.Considered,
		"used_tokens", prompt.UsedTokens,
		"available_tokens", prompt.Available,
	)
	return nil
}
