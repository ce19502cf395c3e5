package port

// TokenCounter maps text to a token count under one encoding scheme.
// Implementations must be deterministic for identical input.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}
