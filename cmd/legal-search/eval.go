package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jien0404/zalo-legal-chatbot/internal/bootstrap"
	"github.com/jien0404/zalo-legal-chatbot/internal/eval"
)

type evalOptions struct {
	k                int
	retrievalBreadth int
	concurrency      int
	reportPath       string
	jsonOutput       bool
}

func newEvalCmd(root *rootOptions) *cobra.Command {
	opts := &evalOptions{}
	cmd := &cobra.Command{
		Use:   "eval <dataset.jsonl|dataset.xlsx>",
		Short: "Measure hit@k, recall@k and MRR on a labelled question set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			queries, err := eval.LoadDataset(args[0])
			if err != nil {
				return err
			}

			app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{Service: "legal-eval"})
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := eval.Run(cmd.Context(), app.Retriever, queries, eval.RunOptions{
				K:                opts.k,
				RetrievalBreadth: opts.retrievalBreadth,
				Concurrency:      opts.concurrency,
			})
			if err != nil {
				return err
			}

			if opts.reportPath != "" {
				f, err := os.Create(opts.reportPath)
				if err != nil {
					return fmt.Errorf("create report: %w", err)
				}
				if err := eval.WriteXLSX(f, report); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("close report: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return writeJSONValue(out, report)
			}
			_, err = fmt.Fprintf(out,
				"queries=%d failed=%d hit@%d=%.4f recall@%d=%.4f precision@%d=%.4f mrr=%.4f mean_latency=%s p95_latency=%s\n",
				report.Queries, report.Failed,
				report.K, report.HitAtK, report.K, report.RecallAtK, report.K, report.PrecisionAK,
				report.MRR, report.MeanLatency.Round(time.Millisecond), report.P95Latency.Round(time.Millisecond),
			)
			return err
		},
	}
	cmd.Flags().IntVar(&opts.k, "k", 5, "metric cutoff and rerank breadth")
	cmd.Flags().IntVar(&opts.retrievalBreadth, "retrieval-breadth", 0, "fused candidates passed to the reranker (0 = configured default)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 4, "queries in flight")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "write a per-query XLSX report to this path")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the full report as JSON")
	return cmd
}
