package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mediaflow/internal/jobs"
	"mediaflow/internal/preflight"
)

type statusReport struct {
	Checks []preflight.Result      `json:"checks"`
	Queues []jobs.QueueStatistics `json:"queues"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Run readiness checks and summarise the job queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				report := statusReport{Checks: preflight.RunAll(cmd.Context(), a.cfg, a.store)}
				queues, err := a.jobs.GetQueueStatistics(cmd.Context())
				if err != nil {
					return err
				}
				report.Queues = queues

				err = emit(cmd, ctx, report, func() error {
					rows := make([][]string, 0, len(report.Checks))
					for _, check := range report.Checks {
						state := "ok"
						if !check.Passed {
							state = "FAIL"
						}
						rows = append(rows, []string{check.Name, state, check.Detail})
					}
					printTable(cmd, []column{textCol("Check"), textCol("State"), noteCol("Detail")}, rows)
					renderQueueStats(cmd, report.Queues)
					return nil
				})
				if err != nil {
					return err
				}
				if failed := preflight.Failed(report.Checks); len(failed) > 0 {
					return fmt.Errorf("%d readiness check(s) failed", len(failed))
				}
				return nil
			})
		},
	}
}

func renderQueueStats(cmd *cobra.Command, stats []jobs.QueueStatistics) {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			label(string(s.Queue)),
			strconv.Itoa(s.Concurrency),
			strconv.Itoa(s.Waiting),
			strconv.Itoa(s.Delayed),
			strconv.Itoa(s.Active),
			strconv.Itoa(s.Completed),
			strconv.Itoa(s.Failed),
		})
	}
	printTable(cmd, []column{
		textCol("Queue"), numCol("Workers"), numCol("Waiting"), numCol("Delayed"),
		numCol("Active"), numCol("Completed"), numCol("Failed"),
	}, rows)
}
