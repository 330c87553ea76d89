// Package tokenizer provides token counting compatible with the downstream
// LLM family. Counts feed the query composer's budget loop, so Count must be
// pure and cheap.
package tokenizer

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter converts text to a token count. Implementations must be safe for
// concurrent use and return 0 for the empty string.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts with a real BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding (e.g. "cl100k_base").
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count returns the BPE token count of text.
func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// HeuristicCounter approximates BPE counts without a vocabulary: roughly one
// token per word plus one per 4 runes of word overflow. Used when the BPE
// tables are unavailable (offline startup) and in tests that need
// deterministic counts.
type HeuristicCounter struct{}

// NewHeuristicCounter returns a vocabulary-free counter.
func NewHeuristicCounter() *HeuristicCounter { return &HeuristicCounter{} }

// Count approximates the token count of text.
func (HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	for _, w := range strings.Fields(text) {
		runes := utf8.RuneCountInString(w)
		n++
		if runes > 4 {
			n += (runes - 1) / 4
		}
	}
	return n
}

// FixedCounter charges a constant per non-empty text. Test helper for budget
// arithmetic where exact counts matter more than realism.
type FixedCounter struct {
	PerText int
}

// Count returns PerText for any non-empty text.
func (c FixedCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return c.PerText
}
