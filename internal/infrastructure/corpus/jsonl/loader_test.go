package jsonl

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

type memFiles map[string]string

func (m memFiles) Open(_ context.Context, key string) (io.ReadCloser, error) {
	content, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("open %s: not found", key)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

const chunksFixture = `{"chunk_id":"c1","doc_id":"d1","text":"Người lao động được nghỉ phép năm."}
{"chunk_id":"c2","doc_id":"d1","text":"Tiền lương làm thêm giờ."}

{"chunk_id":"c3","doc_id":"d2","text":"Hợp đồng lao động."}
`

func TestLoaderAlignsTokensByPosition(t *testing.T) {
	files := memFiles{
		DefaultChunksFile: chunksFixture,
		DefaultTokensFile: `[["Người_lao_động","được","nghỉ_phép","năm"],"Tiền_lương làm_thêm giờ",["Hợp_đồng","lao_động"]]`,
	}

	chunks, err := NewLoader(files, "", "").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].ChunkID != "c2" || chunks[1].DocID != "d1" {
		t.Fatalf("unexpected chunk: %+v", chunks[1])
	}
	if got := strings.Join(chunks[1].Tokens, "|"); got != "Tiền_lương|làm_thêm|giờ" {
		t.Fatalf("expected space-joined entry split into tokens, got %q", got)
	}
	if got := strings.Join(chunks[2].Tokens, "|"); got != "Hợp_đồng|lao_động" {
		t.Fatalf("unexpected tokens for c3: %q", got)
	}
}

func TestLoaderRejectsMisalignedFiles(t *testing.T) {
	files := memFiles{
		DefaultChunksFile: chunksFixture,
		DefaultTokensFile: `[["a"],["b"]]`,
	}

	_, err := NewLoader(files, "", "").Load(context.Background())
	if !domain.IsKind(err, domain.ErrCorpusIntegrity) {
		t.Fatalf("expected ErrCorpusIntegrity, got %v", err)
	}
}

func TestLoaderRejectsMalformedRecords(t *testing.T) {
	cases := map[string]memFiles{
		"bad json line": {
			DefaultChunksFile: "{\"chunk_id\":\"c1\"}\n{not json}\n",
			DefaultTokensFile: `[["a"],["b"]]`,
		},
		"missing chunk id": {
			DefaultChunksFile: "{\"chunk_id\":\"\",\"doc_id\":\"d\"}\n",
			DefaultTokensFile: `[["a"]]`,
		},
		"bad token entry": {
			DefaultChunksFile: "{\"chunk_id\":\"c1\"}\n",
			DefaultTokensFile: `[42]`,
		},
		"missing tokens file": {
			DefaultChunksFile: "{\"chunk_id\":\"c1\"}\n",
		},
	}

	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewLoader(files, "", "").Load(context.Background())
			if !domain.IsKind(err, domain.ErrCorpusIntegrity) {
				t.Fatalf("expected ErrCorpusIntegrity, got %v", err)
			}
		})
	}
}

func TestLoaderUsesConfiguredFileNames(t *testing.T) {
	files := memFiles{
		"chunks.jsonl": "{\"chunk_id\":\"x\",\"doc_id\":\"d\",\"text\":\"t\"}\n",
		"tokens.json":  `[["t"]]`,
	}

	chunks, err := NewLoader(files, "chunks.jsonl", "tokens.json").Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(chunks) != 1 || chunks[0].ChunkID != "x" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}
