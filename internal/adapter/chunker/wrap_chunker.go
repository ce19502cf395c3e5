package chunker

import (
	"regexp"
	"strings"

	"ragctx/internal/domain"
)

// DefaultWrapWidth is the chunk width in characters.
const DefaultWrapWidth = 2048

var wordPattern = regexp.MustCompile(`\S+`)

// WrapChunker greedily packs whitespace-separated words into chunks of at
// most width characters, joined by single spaces. Words are never split; a
// word longer than width becomes a chunk of its own.
type WrapChunker struct {
	width int
}

func NewWrapChunker(width int) *WrapChunker {
	if width <= 0 {
		width = DefaultWrapWidth
	}
	return &WrapChunker{width: width}
}

func (c *WrapChunker) Chunk(doc domain.Document, content string) ([]domain.Chunk, error) {
	lines := newLineIndex(content)
	words := wordPattern.FindAllStringIndex(content, -1)

	var chunks []domain.Chunk
	var sb strings.Builder
	first, last := -1, -1

	flush := func() {
		if sb.Len() == 0 {
			return
		}
		chunks = append(chunks, domain.Chunk{
			ID:        generateChunkID(doc.ID, words[first][0], words[last][1]),
			DocID:     doc.ID,
			Seq:       len(chunks),
			StartLine: lines.lineAt(words[first][0]),
			EndLine:   lines.lineAt(words[last][1] - 1),
			Text:      sb.String(),
		})
		sb.Reset()
	}

	for i, loc := range words {
		word := content[loc[0]:loc[1]]
		if sb.Len() > 0 && sb.Len()+1+len(word) > c.width {
			flush()
		}
		if sb.Len() == 0 {
			first = i
		} else {
			sb.WriteByte(' ')
		}
		sb.WriteString(word)
		last = i
	}
	flush()

	return chunks, nil
}
