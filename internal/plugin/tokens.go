package plugin

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the number of model tokens in a text.
type TokenCounter interface {
	Count(text string) int
}

var (
	encoding     *tiktoken.Tiktoken
	encodingOnce sync.Once
)

func loadEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		// cl100k_base covers the GPT-3.5/GPT-4 families.
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("token counting falls back to estimation", "error", err)
			return
		}
		encoding = enc
	})
	return encoding
}

type tiktokenCounter struct{}

// NewTokenCounter returns a cl100k_base counter that degrades to a
// character-based estimate when the encoding cannot be loaded.
func NewTokenCounter() TokenCounter { return tiktokenCounter{} }

func (tiktokenCounter) Count(text string) int {
	if enc := loadEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return EstimateTokens(text)
}

// EstimateTokens approximates the token count as one token per four runes.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}
