package tokens

import (
	"fmt"
	"strings"
	"sync"

	"ragctx/internal/port"
)

// Pseudo-encodings that need no BPE vocabulary.
const (
	EncodingHeuristic = "heuristic"
	EncodingWords     = "words"
)

// Registry builds one counter per encoding name on first use.
type Registry struct {
	mu       sync.Mutex
	counters map[string]port.TokenCounter
	build    func(name string) (port.TokenCounter, error)
}

func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]port.TokenCounter),
		build:    buildCounter,
	}
}

// Counter returns the counter for an encoding or model name.
func (r *Registry) Counter(name string) (port.TokenCounter, error) {
	key := strings.TrimSpace(name)
	if key == "" {
		key = DefaultEncoding
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[key]; ok {
		return c, nil
	}
	c, err := r.build(key)
	if err != nil {
		return nil, err
	}
	r.counters[key] = c
	return c, nil
}

// Count counts text under the named encoding.
func (r *Registry) Count(text, encoding string) (int, error) {
	c, err := r.Counter(encoding)
	if err != nil {
		return 0, err
	}
	return c.CountTokens(text)
}

func buildCounter(name string) (port.TokenCounter, error) {
	switch name {
	case EncodingHeuristic:
		return NewHeuristicCounter(), nil
	case EncodingWords:
		return WordCounter{}, nil
	}
	c, err := NewTiktokenCounter(name)
	if err != nil {
		return nil, fmt.Errorf("token counter: %w", err)
	}
	return c, nil
}
