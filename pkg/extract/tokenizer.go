package extract

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// encodingName selects the BPE vocabulary used for token accounting.
	encodingName = "cl100k_base"

	// bytesPerTokenEstimate approximates English prose when the encoding
	// is unavailable.
	bytesPerTokenEstimate = 4
)

// Tokenizer counts and truncates text against a token budget. A nil
// Tokenizer is valid and falls back to byte-length estimation.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTokenizer loads the token encoding.
func NewTokenizer() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", encodingName, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Count returns the token count for text.
func (t *Tokenizer) Count(text string) int {
	if t == nil || t.enc == nil {
		return (len(text) + bytesPerTokenEstimate - 1) / bytesPerTokenEstimate
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Truncate cuts text down to at most maxTokens tokens. It returns the
// (possibly shortened) text, the token count of the returned text, and
// whether anything was cut. A non-positive budget disables truncation.
func (t *Tokenizer) Truncate(text string, maxTokens int) (string, int, bool) {
	if maxTokens <= 0 {
		return text, t.Count(text), false
	}

	if t == nil || t.enc == nil {
		return truncateEstimated(text, maxTokens)
	}

	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, len(tokens), false
	}
	return t.enc.Decode(tokens[:maxTokens]), maxTokens, true
}

// truncateEstimated cuts on the byte estimate, backing up to a rune boundary.
func truncateEstimated(text string, maxTokens int) (string, int, bool) {
	maxBytes := maxTokens * bytesPerTokenEstimate
	if len(text) <= maxBytes {
		return text, (len(text) + bytesPerTokenEstimate - 1) / bytesPerTokenEstimate, false
	}

	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut], maxTokens, true
}
