// Package utils provides tiktoken-based token counting.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens with a tiktoken codec. Every provider is approximated
// with the GPT-4 encoding; counts are used for estimates, never for billing.
type TokenCounter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // codec construction is expensive and the codec is immutable
var (
	sharedCodec    tokenizer.Codec
	sharedCodecErr error
	sharedOnce     sync.Once
)

func gpt4Codec() (tokenizer.Codec, error) {
	sharedOnce.Do(func() {
		sharedCodec, sharedCodecErr = tokenizer.ForModel(tokenizer.GPT4)
	})
	return sharedCodec, sharedCodecErr
}

// NewTokenCounter creates a token counter for model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := gpt4Codec()
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// 4 chars ≈ 1 token
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountTokensSimple counts tokens with the shared GPT-4 codec.
func CountTokensSimple(text string) int {
	codec, err := gpt4Codec()
	if err != nil {
		return len(text) / 4
	}
	return (&TokenCounter{codec: codec}).CountTokens(text)
}

// ValidateTokenLimit reports whether text fits within limit tokens.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}

// TruncateToTokenLimit truncates text to roughly limit tokens. It cuts by
// characters proportionally, not on token boundaries.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	currentTokens := tc.CountTokens(text)
	if currentTokens <= limit {
		return text
	}

	ratio := float64(limit) / float64(currentTokens)
	charLimit := int(float64(len(text)) * ratio * 0.9)
	if charLimit >= len(text) {
		return text
	}
	return text[:charLimit] + "..."
}
