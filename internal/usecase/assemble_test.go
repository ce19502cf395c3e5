package usecase

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ragctx/internal/adapter/tokens"
	"ragctx/internal/domain"
)

// tenWordPreamble is 10 tokens under tokens.WordCounter.
const tenWordPreamble = "Answer the question using only the blog posts shown below."

type failingCounter struct {
	failOn string
	err    error
}

func (c failingCounter) CountTokens(text string) (int, error) {
	if strings.Contains(text, c.failOn) {
		return 0, c.err
	}
	return tokens.WordCounter{}.CountTokens(text)
}

// passageWithCost returns a passage whose rendered block costs n word tokens.
// The block adds four fields: "Source:", the id and two quote fences.
func passageWithCost(id string, n int) domain.Passage {
	words := make([]string, n-4)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return domain.Passage{
		ID:       id,
		SourceID: "https://example.com/" + id,
		Text:     strings.Join(words, " "),
	}
}

func countWords(t *testing.T, s string) int {
	t.Helper()
	n, err := tokens.WordCounter{}.CountTokens(s)
	require.NoError(t, err)
	return n
}

func newWordAssembler(t *testing.T) *Assembler {
	t.Helper()
	a := NewAssembler(tokens.WordCounter{}, tenWordPreamble)
	require.Equal(t, 10, countWords(t, a.Preamble()))
	return a
}

func TestAssemble_GreedyPrefixScenario(t *testing.T) {
	a := newWordAssembler(t)
	candidates := []domain.Passage{
		passageWithCost("a", 20),
		passageWithCost("b", 20),
		passageWithCost("c", 5),
	}

	got, err := a.Assemble("What is X?", candidates, 100, 50)
	require.NoError(t, err)

	assert.Equal(t, 36, got.Available)
	assert.Equal(t, 1, got.Included)
	require.Len(t, got.Passages, 1)
	assert.Equal(t, "a", got.Passages[0].ID)
	assert.Equal(t, 2, got.Considered)
	assert.Equal(t, 10+20+4, got.UsedTokens)
	assert.NotContains(t, got.Prompt, candidates[2].SourceID, "a later, smaller candidate must not be packed")
}

func TestAssemble_BudgetExceeded(t *testing.T) {
	a := newWordAssembler(t)

	_, err := a.Assemble("What is X?", []domain.Passage{passageWithCost("a", 5)}, 60, 55)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExceeded))

	var budgetErr *BudgetExceededError
	require.True(t, errors.As(err, &budgetErr))
	assert.Equal(t, -9, budgetErr.Available())
	assert.Equal(t, 10, budgetErr.PreambleTokens)
	assert.Equal(t, 4, budgetErr.QuestionTokens)
}

func TestAssemble_ZeroAvailableIsAnError(t *testing.T) {
	a := newWordAssembler(t)

	_, err := a.Assemble("What is X?", nil, 64, 50)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestAssemble_NonPositiveBudget(t *testing.T) {
	a := newWordAssembler(t)

	for _, budget := range []int{0, -1} {
		_, err := a.Assemble("What is X?", nil, budget, 0)
		assert.ErrorIs(t, err, ErrBudgetExceeded, "budget %d", budget)
	}
}

func TestAssemble_EmptyCandidates(t *testing.T) {
	a := newWordAssembler(t)

	got, err := a.Assemble("What is X?", nil, 100, 0)
	require.NoError(t, err)

	assert.Equal(t, tenWordPreamble+"\n\nQuestion: What is X?", got.Prompt)
	assert.Equal(t, 0, got.Included)
	assert.Empty(t, got.Passages)
	assert.Equal(t, 14, got.UsedTokens)
}

func TestAssemble_OversizedFirstCandidate(t *testing.T) {
	a := newWordAssembler(t)
	candidates := []domain.Passage{
		passageWithCost("huge", 200),
		passageWithCost("tiny", 5),
	}

	got, err := a.Assemble("What is X?", candidates, 100, 0)
	require.NoError(t, err)

	assert.Equal(t, 0, got.Included)
	assert.Equal(t, tenWordPreamble+"\n\nQuestion: What is X?", got.Prompt)
}

func TestAssemble_ExactFitIsExcluded(t *testing.T) {
	a := newWordAssembler(t)

	// available = 50 - 10 - 4 = 36; a 36-token block does not satisfy running+cost < available.
	got, err := a.Assemble("What is X?", []domain.Passage{passageWithCost("a", 36)}, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Included)

	got, err = a.Assemble("What is X?", []domain.Passage{passageWithCost("a", 35)}, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Included)
}

func TestAssemble_PromptLayout(t *testing.T) {
	a := NewAssembler(tokens.WordCounter{}, "Preamble.")
	candidates := []domain.Passage{
		{ID: "1", SourceID: "post-1", Text: "first body"},
		{ID: "2", SourceID: "post-2", Text: "second body"},
	}

	got, err := a.Assemble("Why?", candidates, 1000, 0)
	require.NoError(t, err)

	want := "Preamble." +
		"\n\nSource: post-1\n\"\"\"\nfirst body\n\"\"\"" +
		"\n\nSource: post-2\n\"\"\"\nsecond body\n\"\"\"" +
		"\n\nQuestion: Why?"
	assert.Equal(t, want, got.Prompt)
	assert.Equal(t, 2, got.Included)
}

func TestAssemble_DefaultPreamble(t *testing.T) {
	a := NewAssembler(tokens.WordCounter{}, "")
	assert.Equal(t, DefaultPreamble, a.Preamble())
}

func TestAssemble_NeverExceedsBudget(t *testing.T) {
	a := newWordAssembler(t)
	var candidates []domain.Passage
	for i, n := range []int{7, 12, 30, 5, 9, 18, 6, 40, 11} {
		candidates = append(candidates, passageWithCost(fmt.Sprintf("p%d", i), n))
	}

	for budget := 0; budget <= 250; budget++ {
		for _, overhead := range []int{0, 10, 50} {
			got, err := a.Assemble("What is X?", candidates, budget, overhead)
			if err != nil {
				require.ErrorIs(t, err, ErrBudgetExceeded)
				continue
			}
			used := countWords(t, got.Prompt)
			assert.Equal(t, got.UsedTokens, used)
			assert.LessOrEqual(t, used, budget, "budget=%d overhead=%d", budget, overhead)
			assert.LessOrEqual(t, used+overhead, budget, "budget=%d overhead=%d", budget, overhead)
		}
	}
}

func TestAssemble_NeverExceedsBudgetHeuristic(t *testing.T) {
	counter := tokens.NewHeuristicCounter()
	a := NewAssembler(counter, "")
	var candidates []domain.Passage
	for i := 0; i < 20; i++ {
		candidates = append(candidates, domain.Passage{
			ID:       fmt.Sprintf("p%d", i),
			SourceID: fmt.Sprintf("post-%d", i),
			Text:     "word word word",
		})
	}

	for budget := 1; budget <= 300; budget++ {
		for _, overhead := range []int{0, 7} {
			got, err := a.Assemble("Why is the sky blue?", candidates, budget, overhead)
			if err != nil {
				require.ErrorIs(t, err, ErrBudgetExceeded)
				continue
			}
			whole, err := counter.CountTokens(got.Prompt)
			require.NoError(t, err)
			assert.LessOrEqual(t, whole, got.UsedTokens, "budget=%d overhead=%d", budget, overhead)
			assert.LessOrEqual(t, whole+overhead, budget, "budget=%d overhead=%d", budget, overhead)
		}
	}
}

func TestAssemble_MonotonicInBudget(t *testing.T) {
	a := newWordAssembler(t)
	var candidates []domain.Passage
	for i, n := range []int{8, 8, 25, 6, 14, 9} {
		candidates = append(candidates, passageWithCost(fmt.Sprintf("p%d", i), n))
	}

	prev := 0
	for budget := 15; budget <= 200; budget++ {
		got, err := a.Assemble("What is X?", candidates, budget, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Included, prev, "budget=%d", budget)
		prev = got.Included
	}
	assert.Equal(t, len(candidates), prev)
}

func TestAssemble_GreedyStop(t *testing.T) {
	a := newWordAssembler(t)
	candidates := []domain.Passage{
		passageWithCost("small", 6),
		passageWithCost("big", 30),
		passageWithCost("smaller", 5),
		passageWithCost("smallest", 5),
	}

	got, err := a.Assemble("What is X?", candidates, 40, 0)
	require.NoError(t, err)

	require.Equal(t, 1, got.Included)
	assert.Equal(t, "small", got.Passages[0].ID)
	for _, p := range candidates[2:] {
		assert.NotContains(t, got.Prompt, p.SourceID)
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	a := newWordAssembler(t)
	candidates := []domain.Passage{passageWithCost("a", 10), passageWithCost("b", 12)}

	first, err := a.Assemble("What is X?", candidates, 100, 20)
	require.NoError(t, err)
	second, err := a.Assemble("What is X?", candidates, 100, 20)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAssemble_ConcurrentUse(t *testing.T) {
	a := newWordAssembler(t)
	candidates := []domain.Passage{passageWithCost("a", 10), passageWithCost("b", 12)}
	want, err := a.Assemble("What is X?", candidates, 100, 20)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := a.Assemble("What is X?", candidates, 100, 20)
			if err == nil {
				results[i] = got.Prompt
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, want.Prompt, r)
	}
}

func TestAssemble_CounterErrorsPropagateUnchanged(t *testing.T) {
	boom := errors.New("unsupported encoding")

	tests := []struct {
		name   string
		failOn string
	}{
		{"preamble", "Answer the question"},
		{"question", "Question:"},
		{"passage", "Source:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(failingCounter{failOn: tt.failOn, err: boom}, tenWordPreamble)
			_, err := a.Assemble("What is X?", []domain.Passage{passageWithCost("a", 6)}, 100, 0)
			assert.Same(t, boom, err)
		})
	}
}
