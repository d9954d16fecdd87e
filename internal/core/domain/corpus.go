package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Chunk is an immutable unit of retrievable legal text.
type Chunk struct {
	ChunkID string   `json:"chunk_id"`
	DocID   string   `json:"doc_id"`
	Text    string   `json:"text"`
	Tokens  []string `json:"-"`
}

// Corpus is the ordered chunk collection with O(1) id resolution.
// It is read-only once built. Chunk ids are used verbatim as lookup keys, so
// the ids every index returns resolve exactly.
type Corpus struct {
	chunks []Chunk
	byID   map[string]int
}

func NewCorpus(chunks []Chunk) (*Corpus, error) {
	if len(chunks) == 0 {
		return nil, WrapError(ErrCorpusIntegrity, "build corpus", errors.New("corpus is empty"))
	}

	byID := make(map[string]int, len(chunks))
	for i, chunk := range chunks {
		id := chunk.ChunkID
		if strings.TrimSpace(id) == "" {
			return nil, WrapError(ErrCorpusIntegrity, "build corpus", fmt.Errorf("chunk at position %d has empty chunk_id", i))
		}
		if strings.TrimSpace(id) != id {
			return nil, WrapError(ErrCorpusIntegrity, "build corpus", fmt.Errorf("chunk_id %q at position %d has surrounding whitespace", id, i))
		}
		if prev, ok := byID[id]; ok {
			return nil, WrapError(ErrCorpusIntegrity, "build corpus", fmt.Errorf("duplicate chunk_id %q at positions %d and %d", id, prev, i))
		}
		byID[id] = i
	}

	return &Corpus{chunks: chunks, byID: byID}, nil
}

func (c *Corpus) Lookup(chunkID string) (Chunk, bool) {
	idx, ok := c.byID[chunkID]
	if !ok {
		return Chunk{}, false
	}
	return c.chunks[idx], true
}

func (c *Corpus) Len() int {
	return len(c.chunks)
}

func (c *Corpus) At(i int) Chunk {
	return c.chunks[i]
}

// Chunks exposes the backing slice in corpus order. Callers must not mutate it.
func (c *Corpus) Chunks() []Chunk {
	return c.chunks
}
