package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jien0404/zalo-legal-chatbot/internal/config"
	"github.com/jien0404/zalo-legal-chatbot/internal/observability/logging"
)

var version = "dev"

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "legal-search",
		Short: "Hybrid retrieval over the Vietnamese legal corpus",
		Long: `legal-search runs the retrieval pipeline locally: BM25 and semantic search
fused with reciprocal rank fusion, then reranked by a cross-encoder.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	cmd.AddCommand(
		newSearchCmd(opts),
		newEvalCmd(opts),
		newMCPCmd(opts),
		newImportCmd(opts),
	)
	return cmd
}

// load resolves configuration and installs a stderr logger, keeping stdout
// for command output.
func (o *rootOptions) load() (config.Config, error) {
	if o.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", o.configFile); err != nil {
			return config.Config{}, fmt.Errorf("set CONFIG_FILE: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "legal-search", level))
	return cfg, nil
}
