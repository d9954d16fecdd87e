package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/queue/nats"
)

func TestAnswerFromReplyRestoresAcceptedPrefix(t *testing.T) {
	reply := nats.ReplyMessage{
		Chunks: []domain.ScoredChunk{
			{ChunkID: "c1", Score: 0.9},
			{ChunkID: "c2", Score: 0.7},
			{ChunkID: "c3", Score: 0.2},
		},
		Gate: &nats.GateMessage{Outcome: "answerable", Threshold: 0.5, Accepted: 2},
	}

	answer := answerFromReply(reply)
	if answer.Gate.Outcome != domain.GateAnswerable {
		t.Fatalf("unexpected outcome %s", answer.Gate.Outcome)
	}
	if len(answer.Gate.Accepted) != 2 || answer.Gate.Accepted[1].ChunkID != "c2" {
		t.Fatalf("unexpected accepted chunks: %+v", answer.Gate.Accepted)
	}
}

func TestWriteTextTruncatesLongPassages(t *testing.T) {
	var buf bytes.Buffer
	answer := domain.Answer{
		Chunks: []domain.ScoredChunk{{ChunkID: "c1", DocID: "d1", Text: strings.Repeat("ả", 300), Score: 0.8}},
		Gate:   domain.GateDecision{Outcome: domain.GateAnswerable, Threshold: 0.5},
	}
	if err := writeText(&buf, answer); err != nil {
		t.Fatalf("writeText() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "gate: answerable") || !strings.Contains(out, "…") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"search", "eval", "mcp", "import"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %q, got %v (err %v)", name, cmd, err)
		}
	}
}

func TestSearchRequiresQuestion(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"search"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error without a question")
	}
}
