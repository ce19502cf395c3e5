package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"ragctx/internal/domain"
	"ragctx/internal/port"
)

// LineChunker groups whole lines into chunks of at most maxTokens, repeating
// roughly overlap tokens of trailing lines at the start of the next chunk.
// A single line longer than maxTokens becomes its own chunk.
type LineChunker struct {
	maxTokens int
	overlap   int
	counter   port.TokenCounter
}

func NewLineChunker(maxTokens, overlap int, counter port.TokenCounter) *LineChunker {
	return &LineChunker{
		maxTokens: maxTokens,
		overlap:   overlap,
		counter:   counter,
	}
}

func (c *LineChunker) Chunk(doc domain.Document, content string) ([]domain.Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	lines := strings.Split(content, "\n")

	lineTokens := make([]int, len(lines))
	for i, line := range lines {
		n, err := c.counter.CountTokens(line)
		if err != nil {
			return nil, fmt.Errorf("count tokens of line %d: %w", i+1, err)
		}
		lineTokens[i] = n
	}

	var chunks []domain.Chunk
	startLine := 0

	for startLine < len(lines) {
		endLine := startLine
		currentTokens := 0

		for endLine < len(lines) {
			if currentTokens > 0 && currentTokens+lineTokens[endLine] > c.maxTokens {
				break
			}
			currentTokens += lineTokens[endLine]
			endLine++
		}

		if endLine == startLine {
			endLine++
		}

		text := strings.Join(lines[startLine:endLine], "\n")
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, domain.Chunk{
				ID:        generateChunkID(doc.ID, startLine, endLine),
				DocID:     doc.ID,
				Seq:       len(chunks),
				StartLine: startLine + 1,
				EndLine:   endLine,
				Text:      text,
			})
		}

		if endLine >= len(lines) {
			break
		}

		newStart := endLine - c.overlapLines(lineTokens, startLine, endLine)
		if newStart <= startLine {
			newStart = startLine + 1
		}
		startLine = newStart
	}

	return chunks, nil
}

// overlapLines counts how many trailing lines of [start, end) make up the
// overlap.
func (c *LineChunker) overlapLines(lineTokens []int, start, end int) int {
	if c.overlap <= 0 {
		return 0
	}

	overlapLines := 0
	tokens := 0

	for i := end - 1; i > start && tokens < c.overlap; i-- {
		tokens += lineTokens[i]
		overlapLines++
	}

	return overlapLines
}

func generateChunkID(docID string, start, end int) string {
	data := fmt.Sprintf("%s:%d-%d", docID, start, end)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
