package eval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jien0404/zalo-legal-chatbot/internal/core/domain"
	"github.com/jien0404/zalo-legal-chatbot/internal/core/ports"
)

type RunOptions struct {
	// K is the metric cutoff; it is also sent as the rerank breadth.
	K                int
	RetrievalBreadth int
	Concurrency      int
}

type QueryResult struct {
	ID           string        `json:"id"`
	Question     string        `json:"question"`
	Relevant     []string      `json:"relevant_doc_ids"`
	Retrieved    []string      `json:"retrieved_doc_ids"`
	Hit          float64       `json:"hit"`
	Recall       float64       `json:"recall"`
	Precision    float64       `json:"precision"`
	ReciprocalRk float64       `json:"reciprocal_rank"`
	Latency      time.Duration `json:"latency_ns"`
	Error        string        `json:"error,omitempty"`
}

type Report struct {
	K           int           `json:"k"`
	Queries     int           `json:"queries"`
	Failed      int           `json:"failed"`
	HitAtK      float64       `json:"hit_at_k"`
	RecallAtK   float64       `json:"recall_at_k"`
	PrecisionAK float64       `json:"precision_at_k"`
	MRR         float64       `json:"mrr"`
	MeanLatency time.Duration `json:"mean_latency_ns"`
	P95Latency  time.Duration `json:"p95_latency_ns"`
	Results     []QueryResult `json:"results"`
}

// Run sends every question through the retriever and aggregates document
// level metrics. A failed query scores zero and is counted in Failed; only
// context cancellation aborts the run.
func Run(ctx context.Context, retriever ports.Retriever, queries []Query, opts RunOptions) (Report, error) {
	if opts.K <= 0 {
		opts.K = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	results := make([]QueryResult, len(queries))
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			chunks, err := retriever.Retrieve(gctx, domain.RetrieveRequest{
				Query:            q.Question,
				RetrievalBreadth: opts.RetrievalBreadth,
				RerankBreadth:    opts.K,
			})
			result := QueryResult{
				ID:       q.ID,
				Question: q.Question,
				Relevant: q.RelevantDocIDs,
				Latency:  time.Since(started),
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("eval_query_failed", "id", q.ID, "kind", domain.KindOf(err), "error", err)
				result.Error = err.Error()
				mu.Lock()
				failed++
				mu.Unlock()
				results[i] = result
				return nil
			}

			docIDs := make([]string, len(chunks))
			for j, chunk := range chunks {
				docIDs[j] = chunk.DocID
			}
			result.Retrieved = DedupDocIDs(docIDs)
			result.Hit = HitAtK(result.Retrieved, q.RelevantDocIDs, opts.K)
			result.Recall = RecallAtK(result.Retrieved, q.RelevantDocIDs, opts.K)
			result.Precision = PrecisionAtK(result.Retrieved, q.RelevantDocIDs, opts.K)
			result.ReciprocalRk = ReciprocalRank(result.Retrieved, q.RelevantDocIDs)
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("eval run: %w", err)
	}

	return summarize(opts.K, results, failed), nil
}

func summarize(k int, results []QueryResult, failed int) Report {
	report := Report{K: k, Queries: len(results), Failed: failed, Results: results}
	if len(results) == 0 {
		return report
	}

	latencies := make([]time.Duration, len(results))
	var total time.Duration
	for i, r := range results {
		report.HitAtK += r.Hit
		report.RecallAtK += r.Recall
		report.PrecisionAK += r.Precision
		report.MRR += r.ReciprocalRk
		latencies[i] = r.Latency
		total += r.Latency
	}
	n := float64(len(results))
	report.HitAtK /= n
	report.RecallAtK /= n
	report.PrecisionAK /= n
	report.MRR /= n
	report.MeanLatency = total / time.Duration(len(results))

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	idx := int(float64(len(latencies))*0.95+0.5) - 1
	idx = max(0, min(idx, len(latencies)-1))
	report.P95Latency = latencies[idx]
	return report
}

// WriteXLSX writes a summary sheet and one row per query.
func WriteXLSX(w io.Writer, report Report) error {
	book := excelize.NewFile()
	defer book.Close()

	const summary = "Summary"
	if err := book.SetSheetName(book.GetSheetName(0), summary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rows := [][]any{
		{"k", report.K},
		{"queries", report.Queries},
		{"failed", report.Failed},
		{fmt.Sprintf("hit@%d", report.K), report.HitAtK},
		{fmt.Sprintf("recall@%d", report.K), report.RecallAtK},
		{fmt.Sprintf("precision@%d", report.K), report.PrecisionAK},
		{"mrr", report.MRR},
		{"mean_latency_ms", report.MeanLatency.Milliseconds()},
		{"p95_latency_ms", report.P95Latency.Milliseconds()},
	}
	for i, row := range rows {
		if err := book.SetSheetRow(summary, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	const perQuery = "Queries"
	if _, err := book.NewSheet(perQuery); err != nil {
		return fmt.Errorf("add sheet: %w", err)
	}
	header := []any{"id", "question", "relevant_doc_ids", "retrieved_doc_ids", "hit", "recall", "reciprocal_rank", "latency_ms", "error"}
	if err := book.SetSheetRow(perQuery, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range report.Results {
		row := []any{
			r.ID, r.Question, strings.Join(r.Relevant, ", "), strings.Join(r.Retrieved, ", "),
			r.Hit, r.Recall, r.ReciprocalRk, r.Latency.Milliseconds(), r.Error,
		}
		if err := book.SetSheetRow(perQuery, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
