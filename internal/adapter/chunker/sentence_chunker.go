package chunker

import (
	"regexp"
	"strings"

	"ragctx/internal/domain"
)

// sentencePattern matches a run of text up to and including its terminators.
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)

// SentenceChunker emits one chunk per sentence, splitting on '.', '!' and
// '?'. Terminators stay with their sentence; blank fragments are dropped.
type SentenceChunker struct{}

func NewSentenceChunker() *SentenceChunker {
	return &SentenceChunker{}
}

func (c *SentenceChunker) Chunk(doc domain.Document, content string) ([]domain.Chunk, error) {
	lines := newLineIndex(content)

	var chunks []domain.Chunk
	for _, loc := range sentencePattern.FindAllStringIndex(content, -1) {
		raw := content[loc[0]:loc[1]]
		text := strings.TrimSpace(raw)
		if strings.Trim(text, ".!?") == "" {
			continue
		}
		start := loc[0] + strings.Index(raw, text)
		end := start + len(text)

		chunks = append(chunks, domain.Chunk{
			ID:        generateChunkID(doc.ID, start, end),
			DocID:     doc.ID,
			Seq:       len(chunks),
			StartLine: lines.lineAt(start),
			EndLine:   lines.lineAt(end - 1),
			Text:      text,
		})
	}
	return chunks, nil
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(content string) lineIndex {
	starts := lineIndex{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func (x lineIndex) lineAt(offset int) int {
	lo, hi := 0, len(x)
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if x[mid] <= offset {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + 1
}
