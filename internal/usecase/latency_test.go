package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ragctx/internal/adapter/llm"
	"ragctx/internal/domain"
)

// flakyProvider fails every third call and tracks peak concurrency.
type flakyProvider struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func (p *flakyProvider) Complete(ctx context.Context, msgs []domain.Message, opts domain.CompletionOptions) (domain.Completion, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	p.mu.Lock()
	p.prompts = append(p.prompts, msgs[0].Content)
	p.mu.Unlock()

	time.Sleep(time.Millisecond)
	if p.calls.Add(1)%3 == 0 {
		return domain.Completion{}, errors.New("throttled")
	}
	return domain.Completion{Text: "ok", Usage: domain.Usage{CompletionTokens: 4}}, nil
}

func (p *flakyProvider) ModelName() string { return "flaky" }

func TestLatency_Measure(t *testing.T) {
	provider := &flakyProvider{}
	uc := NewLatencyUseCase(provider, 3, nil)

	report, err := uc.Measure(context.Background(), []string{"a", "b"}, 12, domain.CompletionOptions{})
	require.NoError(t, err)

	assert.Equal(t, "flaky", report.Model)
	assert.Equal(t, 12, report.Requests)
	assert.Equal(t, 4, report.Failures)
	assert.Equal(t, 4.0, report.MeanCompletionTokens)
	assert.LessOrEqual(t, report.Min, report.Median)
	assert.LessOrEqual(t, report.Median, report.P95)
	assert.LessOrEqual(t, report.P95, report.Max)
	assert.GreaterOrEqual(t, report.Min, time.Millisecond)
	assert.LessOrEqual(t, provider.peak.Load(), int32(3))

	assert.ElementsMatch(t, []string{"a", "b", "a", "b", "a", "b", "a", "b", "a", "b", "a", "b"}, provider.prompts)
}

func TestLatency_NoPrompts(t *testing.T) {
	_, err := NewLatencyUseCase(llm.NewMockProvider(), 1, nil).Measure(context.Background(), nil, 5, domain.CompletionOptions{})
	assert.Error(t, err)
}

func TestLatency_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLatencyUseCase(llm.NewMockProvider(), 2, nil).Measure(ctx, []string{"a"}, 5, domain.CompletionOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	var durations []time.Duration
	for i := 20; i >= 1; i-- {
		durations = append(durations, ms(i*10))
	}

	r := summarize(durations)
	assert.Equal(t, ms(10), r.Min)
	assert.Equal(t, ms(200), r.Max)
	assert.Equal(t, ms(105), r.Mean)
	assert.Equal(t, ms(105), r.Median)
	assert.InDelta(t, float64(ms(1905)/10), float64(r.P95), float64(time.Microsecond))
	assert.Equal(t, ms(200), durations[0], "input is not reordered")

	assert.Equal(t, LatencyReport{}, summarize(nil))
	one := summarize([]time.Duration{ms(7)})
	assert.Equal(t, ms(7), one.P95)
}
