package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/djsydney04/wrapshot/internal/config"
	"github.com/djsydney04/wrapshot/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ config.Config, store *jobs.Store) error {
				job, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("job %s: %w", args[0], err)
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderJob(job, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs <document-id>",
		Short: "List a document's jobs, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ config.Config, store *jobs.Store) error {
				list, err := store.ListByDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					if list == nil {
						list = []*jobs.Job{}
					}
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintf(out, "No jobs for %s\n", args[0])
					return nil
				}
				fmt.Fprintln(out, renderJobsTable(list, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep [document-id]",
		Short: "Cancel jobs that have been active past the staleness timeout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg config.Config, store *jobs.Store) error {
				var (
					n   int64
					err error
				)
				if len(args) == 1 {
					n, err = store.CancelStale(cmd.Context(), args[0], cfg.StaleTimeout)
				} else {
					n, err = store.CancelAllStale(cmd.Context(), cfg.StaleTimeout)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d stale job(s) older than %s\n", n, cfg.StaleTimeout)
				return nil
			})
		},
	}
}
