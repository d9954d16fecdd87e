package main

import (
	"os"

	"github.com/spf13/cobra"

	mcpadapter "github.com/jien0404/zalo-legal-chatbot/internal/adapters/mcp"
	"github.com/jien0404/zalo-legal-chatbot/internal/bootstrap"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the retrieve_legal_passages tool over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{Service: "legal-mcp"})
			if err != nil {
				return err
			}
			defer app.Close()

			return mcpadapter.NewServer(app.Answerer, version).Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
