package usecase

import (
	"errors"

	"ragctx/internal/domain"
	"ragctx/internal/port"
)

// ErrHistoryTooLarge is returned when the system message and the newest user
// message alone do not fit the budget.
var ErrHistoryTooLarge = errors.New("conversation does not fit the token budget")

// MessageCounter counts tokens the way chat models bill a message list: every
// message costs its role and content plus a fixed overhead, and the reply is
// primed with a few more tokens.
type MessageCounter struct {
	counter            port.TokenCounter
	perMessageOverhead int
	perNameAdjustment  int
	replyPriming       int
}

// NewMessageCounter creates a message counter. Typical values for current
// chat models are 3 per message, 1 per name and 3 for priming.
func NewMessageCounter(counter port.TokenCounter, perMessageOverhead, perNameAdjustment, replyPriming int) *MessageCounter {
	return &MessageCounter{
		counter:            counter,
		perMessageOverhead: perMessageOverhead,
		perNameAdjustment:  perNameAdjustment,
		replyPriming:       replyPriming,
	}
}

// CountMessage returns the cost of a single message, excluding reply priming.
func (m *MessageCounter) CountMessage(msg domain.Message) (int, error) {
	n := m.perMessageOverhead
	for _, s := range []string{msg.Role, msg.Content} {
		c, err := m.counter.CountTokens(s)
		if err != nil {
			return 0, err
		}
		n += c
	}
	if msg.Name != "" {
		c, err := m.counter.CountTokens(msg.Name)
		if err != nil {
			return 0, err
		}
		n += c + m.perNameAdjustment
	}
	return n, nil
}

// CountMessages returns the cost of sending msgs, including reply priming.
func (m *MessageCounter) CountMessages(msgs []domain.Message) (int, error) {
	total := m.replyPriming
	for _, msg := range msgs {
		n, err := m.CountMessage(msg)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// TrimHistory drops the oldest non-system messages while the conversation
// plus maxResponse reply tokens reaches limit. A leading system message and
// the final message are always kept; if those alone do not fit,
// ErrHistoryTooLarge is returned. The input slice is not modified.
func (m *MessageCounter) TrimHistory(msgs []domain.Message, limit, maxResponse int) ([]domain.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	costs := make([]int, len(msgs))
	total := m.replyPriming
	for i, msg := range msgs {
		n, err := m.CountMessage(msg)
		if err != nil {
			return nil, err
		}
		costs[i] = n
		total += n
	}

	start := 0
	if msgs[0].Role == domain.RoleSystem {
		start = 1
	}

	// drop from start up to (but not including) the last message
	drop := start
	for total+maxResponse >= limit && drop < len(msgs)-1 {
		total -= costs[drop]
		drop++
	}
	if total+maxResponse >= limit {
		return nil, ErrHistoryTooLarge
	}

	out := make([]domain.Message, 0, len(msgs)-(drop-start))
	out = append(out, msgs[:start]...)
	out = append(out, msgs[drop:]...)
	return out, nil
}
