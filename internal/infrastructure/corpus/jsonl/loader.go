// Package jsonl loads the prepared corpus: one JSON chunk record per line plus
// a JSON array of tokenized chunks aligned by position.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

const (
	DefaultChunksFile = "legal_corpus_chunks.jsonl"
	DefaultTokensFile = "legal_corpus_chunks_tokenized.json"

	maxLineBytes = 16 << 20
)

type FileOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type Loader struct {
	files      FileOpener
	chunksFile string
	tokensFile string
}

func NewLoader(files FileOpener, chunksFile, tokensFile string) *Loader {
	if chunksFile == "" {
		chunksFile = DefaultChunksFile
	}
	if tokensFile == "" {
		tokensFile = DefaultTokensFile
	}
	return &Loader{files: files, chunksFile: chunksFile, tokensFile: tokensFile}
}

type chunkRecord struct {
	ChunkID string `json:"chunk_id"`
	DocID   string `json:"doc_id"`
	Text    string `json:"text"`
}

func (l *Loader) Load(ctx context.Context) ([]domain.Chunk, error) {
	chunks, err := l.readChunks(ctx)
	if err != nil {
		return nil, err
	}
	tokens, err := l.readTokens(ctx)
	if err != nil {
		return nil, err
	}
	if len(tokens) != len(chunks) {
		return nil, domain.WrapError(domain.ErrCorpusIntegrity, "load corpus",
			fmt.Errorf("%s has %d records but %s has %d", l.chunksFile, len(chunks), l.tokensFile, len(tokens)))
	}
	for i := range chunks {
		chunks[i].Tokens = tokens[i]
	}
	return chunks, nil
}

func (l *Loader) readChunks(ctx context.Context) ([]domain.Chunk, error) {
	rc, err := l.files.Open(ctx, l.chunksFile)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorpusIntegrity, "open chunks", err)
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	out := make([]domain.Chunk, 0, 1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var rec chunkRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, domain.WrapError(domain.ErrCorpusIntegrity, "decode chunks",
				fmt.Errorf("%s line %d: %w", l.chunksFile, line, err))
		}
		if strings.TrimSpace(rec.ChunkID) == "" {
			return nil, domain.WrapError(domain.ErrCorpusIntegrity, "decode chunks",
				fmt.Errorf("%s line %d: missing chunk_id", l.chunksFile, line))
		}
		out = append(out, domain.Chunk{ChunkID: rec.ChunkID, DocID: rec.DocID, Text: rec.Text})
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrCorpusIntegrity, "read chunks", err)
	}
	return out, nil
}

// readTokens accepts each entry either as a token array or as one
// space-joined string.
func (l *Loader) readTokens(ctx context.Context) ([][]string, error) {
	rc, err := l.files.Open(ctx, l.tokensFile)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCorpusIntegrity, "open tokens", err)
	}
	defer rc.Close()

	var entries []json.RawMessage
	if err := json.NewDecoder(bufio.NewReader(rc)).Decode(&entries); err != nil {
		return nil, domain.WrapError(domain.ErrCorpusIntegrity, "decode tokens", err)
	}

	out := make([][]string, len(entries))
	for i, entry := range entries {
		tokens, err := decodeTokenEntry(entry)
		if err != nil {
			return nil, domain.WrapError(domain.ErrCorpusIntegrity, "decode tokens",
				fmt.Errorf("%s entry %d: %w", l.tokensFile, i, err))
		}
		out[i] = tokens
	}
	return out, nil
}

func decodeTokenEntry(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty entry")
	}
	switch trimmed[0] {
	case '[':
		var tokens []string
		if err := json.Unmarshal(trimmed, &tokens); err != nil {
			return nil, err
		}
		return tokens, nil
	case '"':
		var joined string
		if err := json.Unmarshal(trimmed, &joined); err != nil {
			return nil, err
		}
		return strings.Fields(joined), nil
	default:
		return nil, fmt.Errorf("unexpected token entry %.20s", trimmed)
	}
}
