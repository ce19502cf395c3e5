package usecase

import (
	"errors"
	"fmt"
	"strings"

	"ragctx/internal/domain"
	"ragctx/internal/port"
)

// DefaultPreamble is the instruction placed before the retrieved passages.
const DefaultPreamble = `Use the passages below to answer the subsequent question. ` +
	`If the answer cannot be found in the passages, write ` +
	`"Sorry, I could not find an answer in the provided sources."`

// ErrBudgetExceeded matches every *BudgetExceededError.
var ErrBudgetExceeded = errors.New("token budget exceeded")

// BudgetExceededError reports that overhead, preamble and question leave no
// room for passages. It is a configuration error and is never retried.
type BudgetExceededError struct {
	Budget         int
	Overhead       int
	PreambleTokens int
	QuestionTokens int
}

// Available returns the (non-positive) token count left for passages.
func (e *BudgetExceededError) Available() int {
	return e.Budget - e.Overhead - e.PreambleTokens - e.QuestionTokens
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("token budget exceeded: budget %d - overhead %d - preamble %d - question %d leaves %d tokens",
		e.Budget, e.Overhead, e.PreambleTokens, e.QuestionTokens, e.Available())
}

func (e *BudgetExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// Assembler builds retrieval-augmented prompts that fit a token budget.
// It performs no I/O and keeps no state between calls.
type Assembler struct {
	counter  port.TokenCounter
	preamble string
}

// NewAssembler creates an assembler. An empty preamble selects DefaultPreamble.
func NewAssembler(counter port.TokenCounter, preamble string) *Assembler {
	if preamble == "" {
		preamble = DefaultPreamble
	}
	return &Assembler{
		counter:  counter,
		preamble: preamble,
	}
}

// Preamble returns the fixed instruction text.
func (a *Assembler) Preamble() string {
	return a.preamble
}

// Assemble selects the longest prefix of candidates whose rendered blocks fit
// in budget-overhead after the preamble and question are accounted for, and
// composes the prompt. Candidates after the first one that does not fit are
// never considered.
func (a *Assembler) Assemble(query string, candidates []domain.Passage, budget, overhead int) (domain.AssembledPrompt, error) {
	question := questionBlock(query)

	preambleTokens, err := a.counter.CountTokens(a.preamble)
	if err != nil {
		return domain.AssembledPrompt{}, err
	}
	questionTokens, err := a.counter.CountTokens(question)
	if err != nil {
		return domain.AssembledPrompt{}, err
	}

	available := budget - overhead - questionTokens - preambleTokens
	if available <= 0 {
		return domain.AssembledPrompt{}, &BudgetExceededError{
			Budget:         budget,
			Overhead:       overhead,
			PreambleTokens: preambleTokens,
			QuestionTokens: questionTokens,
		}
	}

	var sb strings.Builder
	sb.WriteString(a.preamble)

	included := make([]domain.Passage, 0, len(candidates))
	running := 0
	considered := 0

	for _, c := range candidates {
		considered++
		block := passageBlock(c)
		cost, err := a.counter.CountTokens(block)
		if err != nil {
			return domain.AssembledPrompt{}, err
		}
		if running+cost >= available {
			break
		}
		sb.WriteString(block)
		included = append(included, c)
		running += cost
	}

	sb.WriteString(question)

	return domain.AssembledPrompt{
		Prompt:     sb.String(),
		Passages:   included,
		Included:   len(included),
		Considered: considered,
		UsedTokens: preambleTokens + running + questionTokens,
		Available:  available,
		Budget:     budget,
		Overhead:   overhead,
	}, nil
}

// passageBlock renders one passage with its provenance marker.
func passageBlock(p domain.Passage) string {
	return "\n\nSource: " + p.SourceID + "\n\"\"\"\n" + p.Text + "\n\"\"\""
}

func questionBlock(query string) string {
	return "\n\nQuestion: " + query
}
