package indexer

import "strings"

const (
	DefaultChunkSize    = 1200
	DefaultChunkOverlap = 200
)

// Chunker splits text into overlapping windows measured in runes, so
// multi-byte characters are never cut in half.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker builds a chunker. Non-positive sizes fall back to the defaults;
// an overlap that would not advance the window is reduced to a quarter of
// the size.
func NewChunker(size, overlap int) Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return Chunker{size: size, overlap: overlap}
}

// Split returns the chunks of text in order. Whitespace-only chunks are
// dropped.
func (c Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
