package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "upload <lesson-id> <file>",
		Short: "Register a video for a lesson and queue its processing jobs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				result, err := a.ingest.SubmitUpload(cmd.Context(), args[0], args[1], name)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, result, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Asset:    %s\n", result.AssetID)
					fmt.Fprintf(out, "Workflow: %s\n", result.WorkflowID)
					rows := make([][]string, 0, len(result.Jobs))
					for _, job := range result.Jobs {
						rows = append(rows, []string{job.ID, label(string(job.Type)), strconv.Itoa(job.Priority)})
					}
					printTable(cmd, []column{textCol("Job"), textCol("Type"), numCol("Priority")}, rows)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Original filename to record (defaults to the file's base name)")
	return cmd
}
