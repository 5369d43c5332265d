package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JunJD/xiuer-spider/internal/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run submission API",
		Long: `Starts the HTTP API. Runs submitted to POST /v1/runs are queued and
executed one at a time; GET /v1/runs/{run_id} reports their progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a, err := app.Build(cmd.Context(), cfg, logger)
			if a != nil {
				defer a.Close(context.Background())
			}
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			if err := a.Serve(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
