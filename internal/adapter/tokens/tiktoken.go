package tokens

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when no encoding or model is configured.
const DefaultEncoding = "cl100k_base"

var knownEncodings = map[string]struct{}{
	tiktoken.MODEL_CL100K_BASE: {},
	tiktoken.MODEL_P50K_BASE:   {},
	tiktoken.MODEL_P50K_EDIT:   {},
	tiktoken.MODEL_R50K_BASE:   {},
	tiktoken.MODEL_O200K_BASE:  {},
}

// TiktokenCounter counts BPE tokens with a tiktoken encoding.
// A *tiktoken.Tiktoken is safe for concurrent Encode/Decode calls.
type TiktokenCounter struct {
	encoding string
	tke      *tiktoken.Tiktoken
}

// NewTiktokenCounter resolves nameOrModel first as an encoding name
// (cl100k_base, p50k_base, r50k_base, o200k_base) and then as a model name.
func NewTiktokenCounter(nameOrModel string) (*TiktokenCounter, error) {
	name := strings.TrimSpace(nameOrModel)
	if name == "" {
		name = DefaultEncoding
	}

	if _, ok := knownEncodings[name]; ok {
		tke, err := tiktoken.GetEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("load encoding %s: %w", name, err)
		}
		return &TiktokenCounter{encoding: name, tke: tke}, nil
	}

	tke, err := tiktoken.EncodingForModel(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding or model %q: %w", name, err)
	}
	return &TiktokenCounter{encoding: encodingForModel(name), tke: tke}, nil
}

// CountTokens returns the number of tokens in text. Special-token text is
// encoded as ordinary text.
func (c *TiktokenCounter) CountTokens(text string) (int, error) {
	return len(c.tke.Encode(text, nil, nil)), nil
}

// Encode returns the token ids for text.
func (c *TiktokenCounter) Encode(text string) []int {
	return c.tke.Encode(text, nil, nil)
}

// Decode turns token ids back into text.
func (c *TiktokenCounter) Decode(ids []int) string {
	return c.tke.Decode(ids)
}

// Encoding returns the encoding name in use.
func (c *TiktokenCounter) Encoding() string {
	return c.encoding
}

// encodingForModel mirrors tiktoken's model prefixes closely enough to report
// a name; the encoder itself comes from tiktoken.EncodingForModel.
func encodingForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "o200k_base"
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"), strings.HasPrefix(model, "gpt-35"),
		strings.HasPrefix(model, "text-embedding"):
		return "cl100k_base"
	case strings.HasPrefix(model, "text-davinci"), strings.HasPrefix(model, "code-"):
		return "p50k_base"
	case model == "davinci", model == "curie", model == "babbage", model == "ada":
		return "r50k_base"
	default:
		return DefaultEncoding
	}
}
