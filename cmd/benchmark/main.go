package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ragctx/config"
	"ragctx/internal/adapter/embedding"
	"ragctx/internal/adapter/openaiapi"
	"ragctx/internal/adapter/store"
	"ragctx/internal/adapter/tokens"
	"ragctx/internal/port"
	"ragctx/internal/usecase"
)

func main() {
	indexPath := flag.String("index", ".", "Path to indexed directory")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 20, "Number of candidate passages")
	budgets := flag.String("budgets", "500,1000,2000,4000,8000,16000", "Comma separated token budgets")
	overhead := flag.Int("overhead", -1, "Reserved tokens (default from config)")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -index ./posts -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Retrieval quality (similarity of the candidates)")
		fmt.Println("  2. How many candidates fit each token budget")
		os.Exit(1)
	}

	if err := run(context.Background(), *indexPath, *query, *topK, *budgets, *overhead); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dir, query string, topK int, budgetList string, overhead int) error {
	if err := config.LoadEnv(dir); err != nil {
		return err
	}
	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.ResolveSecrets(nil)
	if overhead < 0 {
		overhead = cfg.Assemble.Overhead
	}

	budgets, err := parseBudgets(budgetList)
	if err != nil {
		return err
	}

	embedder, err := setupEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("embedder init failed: %w", err)
	}

	dbPath := config.IndexDBPath(dir)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no index at %s - run 'ragctx index' first", dbPath)
	}
	st, err := store.NewBoltStore(dbPath, embedder.Dimension())
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer st.Close()

	counter, err := tokens.NewRegistry().Counter(cfg.Tokens.Encoding)
	if err != nil {
		return err
	}

	fmt.Println("CONTEXT ASSEMBLY BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))

	count, err := st.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return errors.New("index is empty")
	}
	fmt.Printf("Passages indexed: %d\n", count)
	fmt.Printf("Model: %s (%s)\n", embedder.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Encoding: %s\n", cfg.Tokens.Encoding)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", query)
	fmt.Println(strings.Repeat("-", 70))

	retriever := usecase.NewRetrieveUseCase(embedder, st, cfg.Retrieve.MinScore)
	results, err := retriever.Search(ctx, query, topK)
	if err != nil {
		return fmt.Errorf("search error: %w", err)
	}
	if len(results) == 0 {
		return errors.New("no passages retrieved")
	}

	totalScore := 0.0
	totalTokens := 0
	for i, r := range results {
		n, err := counter.CountTokens(r.Text)
		if err != nil {
			return err
		}
		totalScore += r.Score
		totalTokens += n

		rating := "LOW"
		if r.Score > 0.7 {
			rating = "HIGH"
		} else if r.Score > 0.5 {
			rating = "GOOD"
		} else if r.Score > 0.3 {
			rating = "OK"
		}

		preview := strings.ReplaceAll(r.Text, "\n", " ")
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		fmt.Printf("%2d. [%s %.3f] %5d tok  %s\n", i+1, rating, r.Score, n, r.SourceID)
		fmt.Printf("    %s\n", preview)
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("BUDGET SWEEP (overhead %d, candidates %d, %d passage tokens):\n", overhead, len(results), totalTokens)

	assembler := usecase.NewAssembler(counter, cfg.Assemble.Preamble)
	for _, budget := range budgets {
		prompt, err := assembler.Assemble(query, results, budget, overhead)
		if errors.Is(err, usecase.ErrBudgetExceeded) {
			fmt.Printf("  budget %6d: no room for passages\n", budget)
			continue
		}
		if err != nil {
			return err
		}
		fill := 0.0
		if prompt.Available > 0 {
			fill = float64(prompt.UsedTokens) / float64(prompt.Available) * 100
		}
		fmt.Printf("  budget %6d: %2d/%d passages, %6d/%d tokens (%.0f%% filled)\n",
			budget, prompt.Included, prompt.Considered, prompt.UsedTokens, prompt.Available, fill)
	}

	avgScore := totalScore / float64(len(results))
	fmt.Println()
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)
	return nil
}

func parseBudgets(s string) ([]int, error) {
	var budgets []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid budget %q", field)
		}
		budgets = append(budgets, n)
	}
	return budgets, nil
}

func setupEmbedder(cfg *config.Config) (port.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimension), nil
	case openaiapi.ProviderOpenAI, openaiapi.ProviderAzure:
		return embedding.NewOpenAIEmbedder(openaiapi.Config{
			Provider:   cfg.Embedding.Provider,
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			APIVersion: cfg.Embedding.APIVersion,
			Timeout:    cfg.Embedding.Timeout,
		}, cfg.Embedding.Model, cfg.Embedding.Dimension, cfg.Embedding.BatchSize)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Embedding.Provider)
	}
}
