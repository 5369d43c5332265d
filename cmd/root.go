// Package cmd defines the CLI commands of the xiuer-spider executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/app"
	"github.com/JunJD/xiuer-spider/internal/config"
	"github.com/JunJD/xiuer-spider/internal/logging"
)

// errRunFailed marks a crawl whose final status is failed. The run has
// already logged its own cause.
var errRunFailed = errors.New("crawl run failed")

type rootOptions struct {
	configPath string
}

// load reads the configuration and builds the process logger.
func (o *rootOptions) load() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development,
		logging.WithLevel(cfg.Logging.Level),
		logging.WithService(app.ServiceName),
	)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger init failed: %w", err)
	}
	return cfg, logger, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "xiuer-spider",
		Short: "Keyword crawler for Xiaohongshu notes and comments.",
		Long: `xiuer-spider searches Xiaohongshu for a keyword, normalizes the notes
(and optionally their comments) into a stable schema and reports progress
to the configured sinks: logs, metrics, webhooks, result documents, a
Postgres archive and Pub/Sub.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML)")

	cmd.AddCommand(
		newCrawlCmd(opts),
		newServeCmd(opts),
		newTriggerCmd(opts),
		newRunsCmd(opts),
	)
	return cmd
}

// Execute runs the CLI with args and returns the process exit code: 0 when
// the command succeeded, 1 otherwise.
func Execute(ctx context.Context, args []string) int {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(stderr, "error:", err)
		}
		return 1
	}
	return 0
}
