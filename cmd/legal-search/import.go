package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jien0404/zalo-legal-chatbot/internal/bootstrap"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Copy the JSONL corpus from CORPUS_DIR into the configured SQL store",
		Long: `import reads the chunk and token files from CORPUS_DIR and replaces the
contents of the legal_chunks table in PostgreSQL or SQLite, selected by
CORPUS_SOURCE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			n, err := bootstrap.ImportCorpus(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d chunks into %s\n", n, cfg.CorpusSource)
			return err
		},
	}
}
