package domain

import "time"

// Document is a source file or blog post loaded during indexing.
type Document struct {
	ID          string
	Path        string
	SourceID    string // URL when known, otherwise the path relative to the index root
	Title       string
	Description string
	PublishDate string
	ModTime     time.Time
}

// Chunk is a piece of a document produced by a chunker.
type Chunk struct {
	ID        string
	DocID     string
	Seq       int
	StartLine int
	EndLine   int
	Text      string
}

// Passage is a retrieved unit of reference text. SourceID is carried through
// to the prompt as provenance and never interpreted.
type Passage struct {
	ID       string  `json:"id"`
	Text     string  `json:"text"`
	SourceID string  `json:"source_id"`
	Title    string  `json:"title,omitempty"`
	Score    float64 `json:"score"`
}

// StoredPassage is a passage together with its embedding, as written to a
// passage store.
type StoredPassage struct {
	ID       string
	DocID    string
	SourceID string
	Title    string
	Text     string
	Vector   []float32
}

// Passage strips the storage-only fields.
func (p StoredPassage) Passage(score float64) Passage {
	return Passage{
		ID:       p.ID,
		Text:     p.Text,
		SourceID: p.SourceID,
		Title:    p.Title,
		Score:    score,
	}
}

// AssembledPrompt is the output of one assembly call.
type AssembledPrompt struct {
	Prompt     string    `json:"prompt"`
	Passages   []Passage `json:"passages"`
	Included   int       `json:"included"`
	Considered int       `json:"considered"`
	UsedTokens int       `json:"used_tokens"`
	Available  int       `json:"available_tokens"`
	Budget     int       `json:"budget_tokens"`
	Overhead   int       `json:"overhead_tokens"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// CompletionOptions are the sampling parameters sent with a completion call.
type CompletionOptions struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// Usage is the provider-reported token usage of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the generated text of a completion call.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Answer is the result of a retrieval-augmented question.
type Answer struct {
	Query    string          `json:"query"`
	Text     string          `json:"answer"`
	Cached   bool            `json:"cached"`
	Prompt   AssembledPrompt `json:"prompt"`
	Usage    Usage           `json:"usage"`
	Duration time.Duration   `json:"duration"`
}

// CachedAnswer is a semantic cache hit.
type CachedAnswer struct {
	Prompt   string
	Response string
	Distance float64
}
