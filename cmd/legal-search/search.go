package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jien0404/zalo-legal-chatbot/internal/bootstrap"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/infrastructure/queue/nats"
)

type searchOptions struct {
	retrievalBreadth int
	rerankBreadth    int
	minScore         float64
	jsonOutput       bool
	viaNATS          bool
	timeout          time.Duration
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <question>",
		Short: "Retrieve the most relevant legal passages for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}

			req := domain.RetrieveRequest{
				Query:            strings.Join(args, " "),
				RetrievalBreadth: opts.retrievalBreadth,
				RerankBreadth:    opts.rerankBreadth,
			}
			var minScore *float64
			if cmd.Flags().Changed("min-score") {
				minScore = &opts.minScore
			}

			var answer domain.Answer
			if opts.viaNATS {
				queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
				if err != nil {
					return err
				}
				defer queue.Close()
				reply, err := queue.Request(ctx, nats.RetrieveMessage{
					Query:            req.Query,
					RetrievalBreadth: req.RetrievalBreadth,
					RerankBreadth:    req.RerankBreadth,
					MinScore:         minScore,
				})
				if err != nil {
					return err
				}
				answer = answerFromReply(reply)
			} else {
				app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "legal-search"})
				if err != nil {
					return err
				}
				defer app.Close()
				answer, err = app.Answerer.Answer(ctx, req, minScore)
				if err != nil {
					return err
				}
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), answer)
			}
			return writeText(cmd.OutOrStdout(), answer)
		},
	}
	cmd.Flags().IntVar(&opts.retrievalBreadth, "retrieval-breadth", 0, "fused candidates passed to the reranker (0 = configured default)")
	cmd.Flags().IntVarP(&opts.rerankBreadth, "top", "k", 0, "passages returned after reranking (0 = configured default)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "relevance gate threshold override")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print JSON")
	cmd.Flags().BoolVar(&opts.viaNATS, "nats", false, "send the request to a running worker over NATS")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall request timeout")
	return cmd
}

func answerFromReply(reply nats.ReplyMessage) domain.Answer {
	answer := domain.Answer{Chunks: reply.Chunks}
	if reply.Gate != nil {
		answer.Gate = domain.GateDecision{
			Outcome:   domain.GateOutcome(reply.Gate.Outcome),
			Threshold: reply.Gate.Threshold,
		}
		// The reply carries only the accepted count; accepted chunks are the
		// leading ones because results are sorted by score.
		n := min(reply.Gate.Accepted, len(reply.Chunks))
		answer.Gate.Accepted = reply.Chunks[:n]
	}
	return answer
}

func writeJSONValue(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSON(w io.Writer, answer domain.Answer) error {
	return writeJSONValue(w, struct {
		Chunks    []domain.ScoredChunk `json:"chunks"`
		Outcome   domain.GateOutcome   `json:"outcome"`
		Threshold float64              `json:"threshold"`
		Accepted  int                  `json:"accepted"`
	}{answer.Chunks, answer.Gate.Outcome, answer.Gate.Threshold, len(answer.Gate.Accepted)})
}

func writeText(w io.Writer, answer domain.Answer) error {
	if _, err := fmt.Fprintf(w, "gate: %s (threshold %.3f, %d accepted)\n\n",
		answer.Gate.Outcome, answer.Gate.Threshold, len(answer.Gate.Accepted)); err != nil {
		return err
	}
	for i, chunk := range answer.Chunks {
		text := chunk.Text
		if runes := []rune(text); len(runes) > 240 {
			text = string(runes[:240]) + "…"
		}
		if _, err := fmt.Fprintf(w, "%d. [%.4f] %s (doc %s)\n   %s\n\n", i+1, chunk.Score, chunk.ChunkID, chunk.DocID, text); err != nil {
			return err
		}
	}
	return nil
}
