package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
)

type answererFake struct {
	answer   domain.Answer
	err      error
	req      domain.RetrieveRequest
	minScore *float64
}

func (f *answererFake) Answer(_ context.Context, req domain.RetrieveRequest, minScore *float64) (domain.Answer, error) {
	f.req = req
	f.minScore = minScore
	return f.answer, f.err
}

func TestRespondReturnsChunksAndGate(t *testing.T) {
	fake := &answererFake{answer: domain.Answer{
		Chunks: []domain.ScoredChunk{{ChunkID: "c1", DocID: "d1", Text: "Điều 1", Score: 0.9}},
		Gate: domain.GateDecision{
			Outcome:   domain.GateAnswerable,
			Threshold: 0.5,
			Accepted:  []domain.ScoredChunk{{ChunkID: "c1", Score: 0.9}},
		},
	}}

	reply := Respond(context.Background(), fake, "req-1", []byte(`{"query":"thuế","rerank_breadth":3,"min_score":0.7}`))
	if reply.Error != nil {
		t.Fatalf("unexpected error reply: %+v", reply.Error)
	}
	if reply.RequestID != "req-1" {
		t.Fatalf("expected request id preserved, got %q", reply.RequestID)
	}
	if fake.req.Query != "thuế" || fake.req.RerankBreadth != 3 {
		t.Fatalf("unexpected forwarded request: %+v", fake.req)
	}
	if fake.minScore == nil || *fake.minScore != 0.7 {
		t.Fatalf("expected min_score forwarded")
	}
	if len(reply.Chunks) != 1 || reply.Chunks[0].ChunkID != "c1" {
		t.Fatalf("unexpected chunks: %+v", reply.Chunks)
	}
	if reply.Gate == nil || reply.Gate.Outcome != "answerable" || reply.Gate.Accepted != 1 {
		t.Fatalf("unexpected gate: %+v", reply.Gate)
	}
}

func TestRespondMapsErrorKind(t *testing.T) {
	fake := &answererFake{err: domain.WrapError(domain.ErrIndexUnavailable, "query", errors.New("timeout"))}

	reply := Respond(context.Background(), fake, "", []byte(`{"query":"q"}`))
	if reply.Error == nil || reply.Error.Kind != "index_unavailable" {
		t.Fatalf("expected index_unavailable, got %+v", reply.Error)
	}
	if reply.RequestID == "" {
		t.Fatalf("expected generated request id")
	}
	if reply.Chunks == nil {
		t.Fatalf("expected empty chunk list, not nil")
	}
}

func TestRespondRejectsMalformedBody(t *testing.T) {
	fake := &answererFake{}

	reply := Respond(context.Background(), fake, "r", []byte(`not-json`))
	if reply.Error == nil || reply.Error.Kind != "invalid_input" {
		t.Fatalf("expected invalid_input, got %+v", reply.Error)
	}
	if fake.req.Query != "" {
		t.Fatalf("answerer must not run for malformed body")
	}
}

func TestRespondTreatsDeadlineAsTemporary(t *testing.T) {
	fake := &answererFake{err: context.DeadlineExceeded}

	reply := Respond(context.Background(), fake, "r", []byte(`{"query":"q"}`))
	if reply.Error == nil || reply.Error.Kind != "temporary" {
		t.Fatalf("expected temporary, got %+v", reply.Error)
	}
}

func TestErrorFromReplyRestoresKind(t *testing.T) {
	err := errorFromReply(&ErrorMessage{Kind: "model_unavailable", Message: "reranker down"})
	if !domain.IsKind(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(context.Canceled); class.RecordFailure || class.Transient {
		t.Fatalf("cancellation must not count as failure: %+v", class)
	}
	if class := classifyNATSError(nats.ErrNoResponders); !class.Transient || !class.RecordFailure {
		t.Fatalf("no responders should be temporary: %+v", class)
	}
	if err := wrapTemporaryIfNeeded(nats.ErrTimeout); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary wrap, got %v", err)
	}
}

type cancelingAnswerer struct {
	cancel func()
	ctxErr error
}

func (f *cancelingAnswerer) Answer(ctx context.Context, _ domain.RetrieveRequest, _ *float64) (domain.Answer, error) {
	f.cancel()
	f.ctxErr = ctx.Err()
	return domain.Answer{Gate: domain.GateDecision{Outcome: domain.GateNoResults, Threshold: 0.5}}, nil
}

func TestHandleRequestFinishesAdmittedRequestAfterShutdown(t *testing.T) {
	serveCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &cancelingAnswerer{cancel: cancel}

	reply := handleRequest(serveCtx, fake, "req-7", []byte(`{"query":"q"}`), time.Second)
	if fake.ctxErr != nil {
		t.Fatalf("expected admitted request to keep a live context, got %v", fake.ctxErr)
	}
	if reply.Error != nil {
		t.Fatalf("unexpected error reply: %+v", reply.Error)
	}
	if reply.Gate == nil || reply.Gate.Outcome != "no_results" {
		t.Fatalf("unexpected gate: %+v", reply.Gate)
	}
}

func TestHandleRequestRefusesAfterShutdown(t *testing.T) {
	serveCtx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := &answererFake{}

	reply := handleRequest(serveCtx, fake, "req-8", []byte(`{"query":"q"}`), time.Second)
	if reply.Error == nil || reply.Error.Kind != "temporary" {
		t.Fatalf("expected temporary error reply, got %+v", reply.Error)
	}
	if reply.RequestID != "req-8" {
		t.Fatalf("expected request id preserved, got %q", reply.RequestID)
	}
	if fake.req.Query != "" {
		t.Fatalf("answerer must not run after shutdown")
	}
}

func TestHandleRequestAppliesTimeout(t *testing.T) {
	fake := &deadlineAnswerer{}
	_ = handleRequest(context.Background(), fake, "", []byte(`{"query":"q"}`), time.Minute)
	if !fake.hasDeadline {
		t.Fatalf("expected request deadline")
	}
}

type deadlineAnswerer struct {
	hasDeadline bool
}

func (f *deadlineAnswerer) Answer(ctx context.Context, _ domain.RetrieveRequest, _ *float64) (domain.Answer, error) {
	_, f.hasDeadline = ctx.Deadline()
	return domain.Answer{}, nil
}
