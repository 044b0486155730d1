package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediaflow/internal/jobs"
	"mediaflow/internal/store"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage processing jobs",
	}
	jobsCmd.AddCommand(newJobsStatusCommand(ctx))
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsContentCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsStatsCommand(ctx))
	return jobsCmd
}

func parseJobTypeFlag(value string) (store.JobType, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	jobType, ok := store.ParseJobType(value)
	if !ok {
		return "", fmt.Errorf("unknown job type %q", value)
	}
	return jobType, nil
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's state, attempts and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				view, err := a.jobs.GetJobStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return emit(cmd, ctx, view, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Job:       %s\n", view.ID)
					fmt.Fprintf(out, "Type:      %s\n", label(string(view.Type)))
					fmt.Fprintf(out, "Status:    %s\n", label(string(view.Status)))
					fmt.Fprintf(out, "Progress:  %d%%\n", view.Progress)
					fmt.Fprintf(out, "Attempts:  %d/%d\n", view.Attempts, view.MaxAttempts)
					fmt.Fprintf(out, "Asset:     %s\n", view.AssetID)
					fmt.Fprintf(out, "Content:   %s\n", view.ContentID)
					fmt.Fprintf(out, "Created:   %s\n", formatTime(view.CreatedAt))
					fmt.Fprintf(out, "Started:   %s\n", formatTimePtr(view.StartedAt))
					fmt.Fprintf(out, "Completed: %s\n", formatTimePtr(view.CompletedAt))
					if view.Error != "" {
						fmt.Fprintf(out, "Error:     %s\n", view.Error)
					}
					if view.Result != nil {
						fmt.Fprintln(out, "Result:")
						return writeJSON(cmd, view.Result)
					}
					return nil
				})
			})
		},
	}
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var typeFlag, statusFlag string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType, err := parseJobTypeFlag(typeFlag)
			if err != nil {
				return err
			}
			var status store.JobStatus
			if strings.TrimSpace(statusFlag) != "" {
				parsed, ok := store.ParseJobStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown job status %q", statusFlag)
				}
				status = parsed
			}
			return ctx.withApp(func(a *app) error {
				views, err := a.jobs.ListJobs(cmd.Context(), jobType, status, limit)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, views, func() error {
					renderJobTable(cmd, views)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&typeFlag, "type", "", "Filter by job type (transcode, subtitle, metadata, thumbnail)")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (pending, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs to show")
	return cmd
}

func newJobsContentCommand(ctx *commandContext) *cobra.Command {
	var typeFlag string

	cmd := &cobra.Command{
		Use:   "content <content-id>",
		Short: "List the jobs submitted for a content item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType, err := parseJobTypeFlag(typeFlag)
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				views, err := a.jobs.GetContentJobs(cmd.Context(), args[0], jobType)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, views, func() error {
					renderJobTable(cmd, views)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&typeFlag, "type", "", "Filter by job type")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Return a failed job to its queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				if err := a.jobs.RetryFailedJob(cmd.Context(), args[0]); err != nil {
					return err
				}
				return emit(cmd, ctx, map[string]string{"job_id": args[0], "status": string(store.JobPending)}, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued\n", args[0])
					return nil
				})
			})
		},
	}
}

func newJobsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-queue job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				stats, err := a.jobs.GetQueueStatistics(cmd.Context())
				if err != nil {
					return err
				}
				return emit(cmd, ctx, stats, func() error {
					renderQueueStats(cmd, stats)
					return nil
				})
			})
		},
	}
}

func renderJobTable(cmd *cobra.Command, views []jobs.JobView) {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.ID,
			label(string(v.Type)),
			label(string(v.Status)),
			strconv.Itoa(v.Priority),
			fmt.Sprintf("%d/%d", v.Attempts, v.MaxAttempts),
			fmt.Sprintf("%d%%", v.Progress),
			shortID(v.AssetID),
			formatTime(v.CreatedAt),
		})
	}
	printTable(cmd, []column{
		textCol("ID"), textCol("Type"), textCol("Status"), numCol("Priority"),
		numCol("Attempts"), numCol("Progress"), textCol("Asset"), textCol("Created"),
	}, rows)
}
