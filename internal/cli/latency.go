package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"ragctx/internal/usecase"
)

var (
	latencyRequests    int
	latencyConcurrency int
	latencyPrompts     string
	latencyJSON        bool
)

var defaultLatencyPrompts = []string{
	"Summarize the plot of a short story about a lighthouse keeper.",
	"List three ways to brew green tea.",
	"Explain what a vector database is in two sentences.",
}

var latencyCmd = &cobra.Command{
	Use:   "latency",
	Short: "Measure completion latency of the configured model",
	Long: `Send a number of completion requests with bounded concurrency and report
mean, median, p95, min and max latency. Failed requests are counted but do not
stop the run.

Examples:
  ragctx latency -n 50 -c 5
  ragctx latency --prompts prompts.txt --json`,
	Args: cobra.NoArgs,
	RunE: runLatency,
}

func init() {
	rootCmd.AddCommand(latencyCmd)
	latencyCmd.Flags().IntVarP(&latencyRequests, "requests", "n", 20, "number of requests")
	latencyCmd.Flags().IntVarP(&latencyConcurrency, "concurrency", "c", 4, "requests in flight")
	latencyCmd.Flags().StringVar(&latencyPrompts, "prompts", "", "file with one prompt per line")
	latencyCmd.Flags().BoolVar(&latencyJSON, "json", false, "output report as JSON")
}

func runLatency(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	out := cmd.OutOrStdout()

	prompts := defaultLatencyPrompts
	if latencyPrompts != "" {
		var err error
		prompts, err = readLines(latencyPrompts)
		if err != nil {
			return err
		}
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	opts := askOptions(cfg).Completion
	report, err := usecase.NewLatencyUseCase(provider, latencyConcurrency, log).Measure(cmd.Context(), prompts, latencyRequests, opts)
	if err != nil {
		return err
	}

	if latencyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Model:      %s\n", report.Model)
	fmt.Fprintf(out, "Requests:   %d (%d failed)\n", report.Requests, report.Failures)
	fmt.Fprintf(out, "Mean:       %s\n", report.Mean)
	fmt.Fprintf(out, "Median:     %s\n", report.Median)
	fmt.Fprintf(out, "P95:        %s\n", report.P95)
	fmt.Fprintf(out, "Min / Max:  %s / %s\n", report.Min, report.Max)
	fmt.Fprintf(out, "Tokens/req: %.1f\n", report.MeanCompletionTokens)
	fmt.Fprintf(out, "Wall time:  %s\n", report.Wall)
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
