package extract

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNilTokenizerEstimates(t *testing.T) {
	var tok *Tokenizer

	if got := tok.Count("abcdefgh"); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
	if got := tok.Count(""); got != 0 {
		t.Errorf("Count(empty) = %d, want 0", got)
	}
	if got := tok.Count("abc"); got != 1 {
		t.Errorf("Count() should round up, got %d", got)
	}
}

func TestTruncateEstimated(t *testing.T) {
	text := strings.Repeat("a", 100)

	got, tokens, truncated := truncateEstimated(text, 10)
	if !truncated {
		t.Error("Expected truncation for text over budget")
	}
	if len(got) != 40 {
		t.Errorf("Expected 40 bytes after truncation, got %d", len(got))
	}
	if tokens != 10 {
		t.Errorf("Expected token count 10, got %d", tokens)
	}

	got, tokens, truncated = truncateEstimated("short", 10)
	if truncated {
		t.Error("Text under budget should not truncate")
	}
	if got != "short" {
		t.Errorf("Expected text unchanged, got %q", got)
	}
	if tokens != 2 {
		t.Errorf("Expected estimate 2 for 5 bytes, got %d", tokens)
	}
}

func TestTruncateEstimatedRuneBoundary(t *testing.T) {
	// 39 ASCII bytes followed by a 2-byte rune straddling the 40-byte cut.
	text := strings.Repeat("a", 39) + "é" + strings.Repeat("b", 20)

	got, _, truncated := truncateEstimated(text, 10)
	if !truncated {
		t.Fatal("Expected truncation")
	}
	if !utf8.ValidString(got) {
		t.Errorf("Truncation split a rune: %q", got)
	}
	if len(got) != 39 {
		t.Errorf("Expected cut backed up to byte 39, got %d", len(got))
	}
}

func TestTruncateZeroBudgetDisables(t *testing.T) {
	var tok *Tokenizer

	got, _, truncated := tok.Truncate("anything at all", 0)
	if truncated || got != "anything at all" {
		t.Errorf("Zero budget must disable truncation, got %q (truncated=%v)", got, truncated)
	}
}

func TestTokenizerEncoding(t *testing.T) {
	tok, err := NewTokenizer()
	if err != nil {
		// The encoding is fetched on first use and may be unavailable in
		// sandboxed environments; the estimate path is covered above.
		t.Logf("Tokenizer initialization failed (expected in some environments): %v", err)
		return
	}

	text := "The quick brown fox jumps over the lazy dog."
	count := tok.Count(text)
	if count < 5 || count > 20 {
		t.Errorf("Implausible token count %d for %q", count, text)
	}

	long := strings.Repeat(text+" ", 50)
	truncatedText, tokens, truncated := tok.Truncate(long, 10)
	if !truncated {
		t.Error("Expected truncation for long text")
	}
	if tokens != 10 {
		t.Errorf("Expected exactly 10 tokens after truncation, got %d", tokens)
	}
	if len(truncatedText) >= len(long) {
		t.Error("Truncated text should be shorter than input")
	}

	kept, tokens, truncated := tok.Truncate(text, 1000)
	if truncated {
		t.Error("Text under budget should not truncate")
	}
	if kept != text {
		t.Error("Text under budget should be unchanged")
	}
	if tokens != count {
		t.Errorf("Count mismatch: %d vs %d", tokens, count)
	}
}
