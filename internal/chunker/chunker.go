// Package chunker splits long input text into API-sized pieces while
// preserving the exact byte stream across the split.
package chunker

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidChunkSize is returned when the requested chunk size can
// never make progress.
var ErrInvalidChunkSize = errors.New("chunk size must be at least 1")

// sentenceEnders are the runes treated as sentence-terminal punctuation.
const sentenceEnders = ".?!;:"

// Chunk is a contiguous slice of the source text with a fixed position
// in the final ordering.
type Chunk struct {
	Index int
	Text  string
}

// Split divides text into ordered chunks of at most maxChunkSize
// characters. It prefers to cut just after sentence-ending punctuation
// that is followed by whitespace (or ends the window), falls back to
// cutting after the last whitespace in the window, and hard-cuts at
// maxChunkSize when the window contains neither, so pathological input
// without any spaces still makes progress.
//
// Whitespace at a cut point is kept, never dropped: concatenating the
// chunk texts in index order reproduces the input exactly. Empty or
// whitespace-only input yields no chunks.
func Split(text string, maxChunkSize int) ([]Chunk, error) {
	if maxChunkSize < 1 {
		return nil, ErrInvalidChunkSize
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= maxChunkSize {
		return []Chunk{{Index: 0, Text: text}}, nil
	}

	var chunks []Chunk
	pos := 0
	for pos < len(runes) {
		end := pos + maxChunkSize
		if end >= len(runes) {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: string(runes[pos:])})
			break
		}

		window := runes[pos:end]
		cut := sentenceCut(window)
		if cut < 0 {
			cut = whitespaceCut(window)
		}
		if cut < 0 {
			cut = maxChunkSize
		}

		chunks = append(chunks, Chunk{Index: len(chunks), Text: string(window[:cut])})
		pos += cut
	}
	return chunks, nil
}

// sentenceCut returns the position just after the last sentence-ending
// rune that is followed by whitespace or ends the window, or -1 when
// the window holds no such boundary.
func sentenceCut(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if !strings.ContainsRune(sentenceEnders, window[i]) {
			continue
		}
		if i+1 == len(window) || unicode.IsSpace(window[i+1]) {
			return i + 1
		}
	}
	return -1
}

// whitespaceCut returns the position just after the last whitespace
// rune in the window, or -1.
func whitespaceCut(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i + 1
		}
	}
	return -1
}
