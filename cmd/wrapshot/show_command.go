package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/djsydney04/wrapshot/internal/config"
	"github.com/djsydney04/wrapshot/internal/jobs"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <document-id>",
		Short: "Display the latest breakdown for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ config.Config, store *jobs.Store) error {
				bd, err := store.Breakdown(cmd.Context(), args[0])
				if errors.Is(err, jobs.ErrNotFound) {
					return fmt.Errorf("no breakdown for %s", args[0])
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, bd.Result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderField("Document", bd.DocumentID))
				fmt.Fprintln(out, renderField("Job", bd.JobID))
				fmt.Fprintln(out, renderField("Pages", fmt.Sprint(bd.Result.TotalPages)))
				fmt.Fprintln(out, renderField("Scenes", fmt.Sprint(bd.Result.TotalScenes)))
				fmt.Fprintln(out, renderField("Generated", formatTime(bd.Result.GeneratedAt)))
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderScenesTable(bd.Result.Scenes))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
