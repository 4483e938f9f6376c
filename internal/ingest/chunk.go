package ingest

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// Chunk is a window of words cut from a source's text.
type Chunk struct {
	ID       string
	SourceID string
	Index    int
	Content  string
}

// Chunker splits text into overlapping word windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 512
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

// Chunk splits text into windows of c.size words, each sharing c.overlap
// words with the previous one.
func (c *Chunker) Chunk(sourceID, text string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.size - c.overlap
	var chunks []Chunk
	for start := 0; ; start += step {
		end := start + c.size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("%s_%s", sourceID, uuid.NewString()[:8]),
			SourceID: sourceID,
			Index:    len(chunks),
			Content:  strings.Join(words[start:end], " "),
		})
		if end == len(words) {
			return chunks
		}
	}
}

// Normalize trims text and collapses whitespace runs to single spaces.
func Normalize(text string) string {
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}
