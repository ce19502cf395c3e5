package usecase

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"ragctx/internal/domain"
	"ragctx/internal/logger"
	"ragctx/internal/port"
)

// LatencyReport summarizes a latency run. Durations cover successful
// requests only.
type LatencyReport struct {
	Model                string        `json:"model"`
	Requests             int           `json:"requests"`
	Failures             int           `json:"failures"`
	Mean                 time.Duration `json:"mean"`
	Median               time.Duration `json:"median"`
	P95                  time.Duration `json:"p95"`
	Min                  time.Duration `json:"min"`
	Max                  time.Duration `json:"max"`
	MeanCompletionTokens float64       `json:"mean_completion_tokens"`
	Wall                 time.Duration `json:"wall"`
}

// LatencyUseCase measures completion latency with a bounded number of
// requests in flight.
type LatencyUseCase struct {
	llm         port.CompletionProvider
	concurrency int
	log         logger.Logger
}

func NewLatencyUseCase(llm port.CompletionProvider, concurrency int, log logger.Logger) *LatencyUseCase {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &LatencyUseCase{llm: llm, concurrency: concurrency, log: log}
}

// Measure sends n requests, cycling through prompts. Failed requests are
// counted and logged; only cancellation of ctx aborts the run.
func (u *LatencyUseCase) Measure(ctx context.Context, prompts []string, n int, opts domain.CompletionOptions) (LatencyReport, error) {
	if len(prompts) == 0 {
		return LatencyReport{}, errors.New("no prompts to send")
	}

	var (
		mu        sync.Mutex
		durations []time.Duration
		tokens    int
		failures  int
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		prompt := prompts[i%len(prompts)]
		g.Go(func() error {
			t0 := time.Now()
			c, err := u.llm.Complete(gctx, []domain.Message{{Role: domain.RoleUser, Content: prompt}}, opts)
			elapsed := time.Since(t0)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures++
				u.log.Warn("request failed", "error", err)
				return nil
			}
			durations = append(durations, elapsed)
			tokens += c.Usage.CompletionTokens
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return LatencyReport{}, err
	}
	if err := ctx.Err(); err != nil {
		return LatencyReport{}, err
	}

	report := summarize(durations)
	report.Model = u.llm.ModelName()
	report.Requests = len(durations) + failures
	report.Failures = failures
	report.Wall = time.Since(start)
	if len(durations) > 0 {
		report.MeanCompletionTokens = float64(tokens) / float64(len(durations))
	}
	return report, nil
}

// summarize computes the duration statistics of a report.
func summarize(durations []time.Duration) LatencyReport {
	if len(durations) == 0 {
		return LatencyReport{}
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return LatencyReport{
		Mean:   total / time.Duration(len(sorted)),
		Median: percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

// percentile interpolates linearly between closest ranks of sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + time.Duration(frac*float64(sorted[lo+1]-sorted[lo]))
}
