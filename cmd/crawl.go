package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/app"
	"github.com/JunJD/xiuer-spider/internal/config"
	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/orchestrator"
)

// runFlags are the per-run knobs shared by crawl and trigger. Unset flags
// fall back to the configuration.
type runFlags struct {
	query       string
	num         int
	sortType    string
	cookies     string
	webhookURL  string
	getComments bool
	noDelay     bool
	taskID      string
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.query, "query", "", "search keyword")
	fs.IntVar(&f.num, "num", 0, "number of notes to collect")
	fs.StringVar(&f.sortType, "sort-type", "", "sort mode: 0-4 or comprehensive|latest|most_liked|most_commented|most_collected")
	fs.StringVar(&f.cookies, "cookies", "", "session cookies")
	fs.StringVar(&f.webhookURL, "webhook-url", "", "webhook receiving lifecycle events")
	fs.BoolVar(&f.getComments, "get-comments", false, "also collect comments")
	fs.BoolVar(&f.noDelay, "no-delay", false, "disable pacing delays")
}

// request merges the flags over cfg.Crawl and cfg.Credential.
func (f *runFlags) request(cmd *cobra.Command, cfg config.Config) (orchestrator.Request, error) {
	req := orchestrator.Request{
		TaskID:      f.taskID,
		Query:       cfg.Crawl.Query,
		Count:       cfg.Crawl.Num,
		SortMode:    cfg.Crawl.SortMode(),
		Credential:  crawler.Credential{Cookies: cfg.Credential.Cookies},
		GetComments: cfg.Crawl.GetComments,
		NoDelay:     f.noDelay,
	}
	fs := cmd.Flags()
	if fs.Changed("query") {
		req.Query = f.query
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return orchestrator.Request{}, errors.New("--query is required")
	}
	if fs.Changed("num") {
		if f.num <= 0 {
			return orchestrator.Request{}, fmt.Errorf("--num must be > 0, got %d", f.num)
		}
		req.Count = f.num
	}
	if fs.Changed("sort-type") {
		mode, err := crawler.ParseSortMode(f.sortType)
		if err != nil {
			return orchestrator.Request{}, fmt.Errorf("--sort-type: %w", err)
		}
		req.SortMode = mode
	}
	if fs.Changed("cookies") {
		req.Credential.Cookies = f.cookies
	}
	if fs.Changed("get-comments") {
		req.GetComments = f.getComments
	}
	return req, nil
}

func newCrawlCmd(opts *rootOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl in the foreground",
		Long: `Runs a single crawl for --query and exits with status 0 when the run
succeeded or completed with isolated errors, and 1 when it failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.taskID, "task-id", "", "caller correlation id echoed in every event")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *rootOptions, flags *runFlags) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	req, err := flags.request(cmd, cfg)
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
	// The configured webhook is already a sink of every run.
	if hook := strings.TrimSpace(flags.webhookURL); hook != "" && hook != strings.TrimSpace(cfg.Webhook.URL) {
		req.Sink, err = a.Webhook(hook)
		if err != nil {
			return err
		}
	}

	res := a.Crawl(cmd.Context(), req)
	orchestrator.LogSummary(logger, res)
	if !res.Success {
		logger.Debug("exiting with failure", zap.String("run_id", res.RunID))
		return errRunFailed
	}
	return nil
}
