package indexer

import (
	"fmt"
	"regexp"
	"strings"

	appErr "github.com/xxxsen/newsdesk/internal/pkg/errors"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

var tokenRegex = regexp.MustCompile(`[a-z0-9]+`)

// Tokenize lowercases text and keeps runs of ascii letters and digits.
func Tokenize(text string) []string {
	return tokenRegex.FindAllString(strings.ToLower(text), -1)
}

// SplitTokens cuts tokens into windows of size tokens, each starting
// size-overlap tokens after the previous one. The last window ends at the
// final token.
func SplitTokens(tokens []string, size, overlap int) ([][]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive: %w", appErr.ErrInvalid)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, %d): %w", size, appErr.ErrInvalid)
	}
	step := size - overlap
	out := make([][]string, 0, len(tokens)/step+1)
	for start := 0; start < len(tokens); start += step {
		end := min(start+size, len(tokens))
		out = append(out, tokens[start:end])
		if end == len(tokens) {
			break
		}
	}
	return out, nil
}

// ChunkTexts returns the space-joined text of every chunk of a document.
func ChunkTexts(text string, size, overlap int) ([]string, error) {
	windows, err := SplitTokens(Tokenize(text), size, overlap)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(windows))
	for _, w := range windows {
		out = append(out, strings.Join(w, " "))
	}
	return out, nil
}
