package tokens

import (
	"strings"
	"unicode"
)

// HeuristicCounter estimates LLM tokens without a vocabulary: roughly 1.3
// tokens per word, rounded up. Rounding up keeps the count of a joined text
// at or below the sum of its parts. It never fails and needs no network or
// model files.
type HeuristicCounter struct{}

func NewHeuristicCounter() HeuristicCounter {
	return HeuristicCounter{}
}

func (HeuristicCounter) CountTokens(text string) (int, error) {
	words := splitWords(text)
	if len(words) == 0 {
		return 0, nil
	}
	return (len(words)*13 + 9) / 10, nil
}

// WordCounter counts whitespace-separated fields. Counts are additive over
// whitespace-joined strings, which keeps budget arithmetic exact.
type WordCounter struct{}

func (WordCounter) CountTokens(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// splitWords splits text into words using unicode letter/digit boundaries.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else {
			if current.Len() > 0 {
				words = append(words, current.String())
				current.Reset()
			}
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}
