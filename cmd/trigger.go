package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JunJD/xiuer-spider/internal/clock/system"
	"github.com/JunJD/xiuer-spider/internal/config"
	"github.com/JunJD/xiuer-spider/internal/trigger"
)

func newTriggerClient(opts *rootOptions) (*trigger.Client, config.Config, error) {
	cfg, logger, err := opts.load()
	if err != nil {
		return nil, config.Config{}, err
	}
	client, err := trigger.New(trigger.Config{
		Owner:      cfg.GitHub.Owner,
		Repo:       cfg.GitHub.Repo,
		Token:      cfg.GitHub.Token,
		APIBaseURL: cfg.GitHub.APIBaseURL,
		EventType:  cfg.GitHub.EventType,
	}, nil, system.New(cfg.Crawl.Location()), logger.Named("trigger"))
	if err != nil {
		return nil, config.Config{}, err
	}
	return client, cfg, nil
}

func newTriggerCmd(opts *rootOptions) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Start a crawl remotely through a repository dispatch event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, cfg, err := newTriggerClient(opts)
			if err != nil {
				return err
			}
			req, err := flags.request(cmd, cfg)
			if err != nil {
				return err
			}
			res, err := client.Dispatch(cmd.Context(), trigger.Task{
				Query:       req.Query,
				Num:         req.Count,
				SortMode:    req.SortMode,
				Cookies:     req.Credential.Cookies,
				WebhookURL:  flags.webhookURL,
				GetComments: req.GetComments,
				NoDelay:     req.NoDelay,
			})
			if err != nil {
				return fmt.Errorf("dispatch: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "task_id: %s\n", res.TaskID)
			fmt.Fprintf(out, "runs:    %s\n", res.RunsURL)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent remote workflow runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := newTriggerClient(opts)
			if err != nil {
				return err
			}
			list, err := client.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tNAME\tSTATUS\tCONCLUSION\tCREATED\tURL\n")
			for _, run := range list.Runs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.Name, run.Status, dash(run.Conclusion),
					run.CreatedAt.Format(time.DateTime), run.HTMLURL)
			}
			if err := tw.Flush(); err != nil {
				return fmt.Errorf("write runs: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d runs\n", len(list.Runs), list.TotalCount)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to list")
	return cmd
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
