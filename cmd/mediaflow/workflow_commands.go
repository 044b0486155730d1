package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mediaflow/internal/store"
	"mediaflow/internal/workflow"
)

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Drive content through draft, review, approval and publication",
	}
	workflowCmd.AddCommand(newWorkflowCreateCommand(ctx))
	workflowCmd.AddCommand(newWorkflowShowCommand(ctx))
	workflowCmd.AddCommand(newWorkflowStatusCommand(ctx))
	workflowCmd.AddCommand(newWorkflowAssignCommand(ctx))
	workflowCmd.AddCommand(newWorkflowNotesCommand(ctx))
	workflowCmd.AddCommand(newWorkflowListCommand(ctx))
	workflowCmd.AddCommand(newWorkflowPendingCommand(ctx))
	workflowCmd.AddCommand(newWorkflowOverdueCommand(ctx))
	workflowCmd.AddCommand(newWorkflowBulkCommand(ctx))
	workflowCmd.AddCommand(newWorkflowTimelineCommand(ctx))
	workflowCmd.AddCommand(newWorkflowSearchCommand(ctx))
	return workflowCmd
}

func parseKindFlag(value string, required bool) (store.ContentKind, error) {
	if strings.TrimSpace(value) == "" {
		if required {
			return "", fmt.Errorf("--type is required (course or lesson)")
		}
		return "", nil
	}
	kind, ok := store.ParseContentKind(value)
	if !ok {
		return "", fmt.Errorf("unknown content type %q (expected course or lesson)", value)
	}
	return kind, nil
}

func parseStatusArg(value string) (store.WorkflowStatus, error) {
	status, ok := workflow.ParseStatus(value)
	if !ok {
		return "", fmt.Errorf("unknown workflow status %q", value)
	}
	return status, nil
}

// parseDeadline accepts an RFC 3339 timestamp, a YYYY-MM-DD date (end of
// day, local time) or a duration from now such as 48h.
func parseDeadline(value string, now time.Time) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		t := now.Add(d)
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", value, time.Local); err == nil {
		t = t.Add(24*time.Hour - time.Second)
		return &t, nil
	}
	return nil, fmt.Errorf("invalid deadline %q (use RFC 3339, YYYY-MM-DD or a duration like 48h)", value)
}

func newWorkflowCreateCommand(ctx *commandContext) *cobra.Command {
	var kindFlag, actor string

	cmd := &cobra.Command{
		Use:   "create <content-id>",
		Short: "Start a draft workflow for a course or lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindFlag(kindFlag, true)
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				view, err := a.workflows.CreateWorkflow(cmd.Context(), args[0], kind, actor)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, view, func() error {
					renderWorkflow(cmd, view)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&kindFlag, "type", "", "Content type: course or lesson")
	cmd.Flags().StringVar(&actor, "actor", "", "User performing the action")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newWorkflowShowCommand(ctx *commandContext) *cobra.Command {
	var byContent bool
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show a workflow and the transitions it allows next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				var view workflow.View
				var err error
				if byContent {
					kind, kerr := parseKindFlag(kindFlag, true)
					if kerr != nil {
						return kerr
					}
					view, err = a.workflows.GetWorkflowByContent(cmd.Context(), args[0], kind)
				} else {
					view, err = a.workflows.GetWorkflow(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				return emit(cmd, ctx, view, func() error {
					renderWorkflow(cmd, view)
					return nil
				})
			})
		},
	}
	cmd.Flags().BoolVar(&byContent, "content", false, "Treat the argument as a content id")
	cmd.Flags().StringVar(&kindFlag, "type", "", "Content type when using --content")
	return cmd
}

func newWorkflowStatusCommand(ctx *commandContext) *cobra.Command {
	var actor, notes string

	cmd := &cobra.Command{
		Use:   "status <workflow-id> <status>",
		Short: "Move a workflow to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatusArg(args[1])
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				view, err := a.workflows.UpdateStatus(cmd.Context(), args[0], status, actor, notes)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, view, func() error {
					renderWorkflow(cmd, view)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "User performing the action")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes recorded with the transition")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newWorkflowAssignCommand(ctx *commandContext) *cobra.Command {
	var actor, deadline string

	cmd := &cobra.Command{
		Use:   "assign <workflow-id> <reviewer-id>",
		Short: "Assign a reviewer to a workflow in review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			due, err := parseDeadline(deadline, time.Now())
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				view, err := a.workflows.AssignReviewer(cmd.Context(), args[0], args[1], actor, due)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, view, func() error {
					renderWorkflow(cmd, view)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "User performing the action")
	cmd.Flags().StringVar(&deadline, "deadline", "", "Review deadline (RFC 3339, YYYY-MM-DD or a duration like 48h)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newWorkflowNotesCommand(ctx *commandContext) *cobra.Command {
	var reviewer string

	cmd := &cobra.Command{
		Use:   "notes <workflow-id> <notes>",
		Short: "Record reviewer notes without changing status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				view, err := a.workflows.AddReviewNotes(cmd.Context(), args[0], reviewer, args[1])
				if err != nil {
					return err
				}
				return emit(cmd, ctx, view, func() error {
					renderWorkflow(cmd, view)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "Reviewer adding the notes")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}

func newWorkflowListCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "list <status>",
		Short: "List workflows in a status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatusArg(args[0])
			if err != nil {
				return err
			}
			kind, err := parseKindFlag(kindFlag, false)
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				views, err := a.workflows.GetContentByStatus(cmd.Context(), status, kind)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, views, func() error {
					renderWorkflowTable(cmd, views, false)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&kindFlag, "type", "", "Filter by content type")
	return cmd
}

func newWorkflowPendingCommand(ctx *commandContext) *cobra.Command {
	var reviewer string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List workflows waiting for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				views, err := a.workflows.GetPendingReviews(cmd.Context(), reviewer)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, views, func() error {
					renderWorkflowTable(cmd, views, false)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "Only reviews assigned to this reviewer")
	return cmd
}

func newWorkflowOverdueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List reviews past their deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				views, err := a.workflows.GetOverdueReviews(cmd.Context())
				if err != nil {
					return err
				}
				return emit(cmd, ctx, views, func() error {
					renderWorkflowTable(cmd, views, true)
					return nil
				})
			})
		},
	}
}

func newWorkflowBulkCommand(ctx *commandContext) *cobra.Command {
	var kindFlag, actor, notes string

	cmd := &cobra.Command{
		Use:   "bulk <status> <content-id>...",
		Short: "Move many content items to a status, reporting each outcome",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseStatusArg(args[0])
			if err != nil {
				return err
			}
			kind, err := parseKindFlag(kindFlag, true)
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				outcomes := a.workflows.BulkUpdateStatus(cmd.Context(), args[1:], kind, status, actor, notes)
				failed := 0
				for _, o := range outcomes {
					if !o.Success {
						failed++
					}
				}
				err := emit(cmd, ctx, outcomes, func() error {
					rows := make([][]string, 0, len(outcomes))
					for _, o := range outcomes {
						state := "ok"
						current := "-"
						if o.Workflow != nil {
							current = label(string(o.Workflow.Status))
						}
						if !o.Success {
							state = "failed"
						}
						rows = append(rows, []string{o.ContentID, state, current, orDash(o.Error)})
					}
					printTable(cmd, []column{textCol("Content"), textCol("Result"), textCol("Status"), noteCol("Error")}, rows)
					return nil
				})
				if err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d updates failed", failed, len(outcomes))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kindFlag, "type", "", "Content type: course or lesson")
	cmd.Flags().StringVar(&actor, "actor", "", "User performing the action")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes recorded with each transition")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newWorkflowTimelineCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <workflow-id>",
		Short: "Show the full history of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				entries, err := a.workflows.GetWorkflowTimeline(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return emit(cmd, ctx, entries, func() error {
					rows := make([][]string, 0, len(entries))
					for _, e := range entries {
						change := label(string(e.ToStatus))
						if e.Transition() {
							change = label(string(e.FromStatus)) + " -> " + change
						} else if e.FromStatus == "" {
							change = "created as " + change
						}
						rows = append(rows, []string{formatTime(e.CreatedAt), change, orDash(e.ActorID), orDash(e.Notes)})
					}
					printTable(cmd, []column{textCol("When"), textCol("Change"), textCol("Actor"), noteCol("Notes")}, rows)
					return nil
				})
			})
		},
	}
}

func newWorkflowSearchCommand(ctx *commandContext) *cobra.Command {
	var statusFlag, kindFlag, title string
	var tags, meta []string
	var limit int

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find workflows by status, tags, metadata or title",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := workflow.SearchParams{Tags: tags, Title: title, Limit: limit}
			if strings.TrimSpace(statusFlag) != "" {
				status, err := parseStatusArg(statusFlag)
				if err != nil {
					return err
				}
				params.Status = status
			}
			kind, err := parseKindFlag(kindFlag, false)
			if err != nil {
				return err
			}
			params.ContentType = kind
			if params.Metadata, err = parseMetadata(meta); err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				views, err := a.workflows.SearchByMetadataAndTags(cmd.Context(), params)
				if err != nil {
					return err
				}
				return emit(cmd, ctx, views, func() error {
					renderWorkflowTable(cmd, views, false)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Workflow status")
	cmd.Flags().StringVar(&kindFlag, "type", "", "Content type")
	cmd.Flags().StringVar(&title, "title", "", "Case-insensitive title substring")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Required tag (repeatable)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "Required metadata key=value (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")
	return cmd
}

func renderWorkflow(cmd *cobra.Command, v workflow.View) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workflow:  %s\n", v.ID)
	fmt.Fprintf(out, "Content:   %s %s (%s)\n", label(string(v.ContentType)), v.ContentID, v.ContentTitle)
	fmt.Fprintf(out, "Owner:     %s\n", orDash(v.ContentOwner))
	fmt.Fprintf(out, "Status:    %s\n", label(string(v.Status)))
	fmt.Fprintf(out, "Reviewer:  %s\n", orDash(v.ReviewerID))
	fmt.Fprintf(out, "Deadline:  %s\n", formatTimePtr(v.ReviewDeadline))
	if v.ReviewNotes != "" {
		fmt.Fprintf(out, "Notes:     %s\n", v.ReviewNotes)
	}
	if v.PublishedAt != nil {
		fmt.Fprintf(out, "Published: %s\n", formatTimePtr(v.PublishedAt))
	}
	if v.ArchivedAt != nil {
		fmt.Fprintf(out, "Archived:  %s\n", formatTimePtr(v.ArchivedAt))
	}
	next := workflow.AllowedTransitions(v.Status)
	labels := make([]string, 0, len(next))
	for _, s := range next {
		labels = append(labels, string(s))
	}
	fmt.Fprintf(out, "Next:      %s\n", strings.Join(labels, ", "))
}

func renderWorkflowTable(cmd *cobra.Command, views []workflow.View, overdue bool) {
	cols := []column{
		textCol("Workflow"), textCol("Type"), noteCol("Title"), textCol("Status"),
		textCol("Reviewer"), textCol("Deadline"), textCol("Updated"),
	}
	if overdue {
		cols = append(cols, numCol("Days Late"))
	}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		row := []string{
			v.ID,
			label(string(v.ContentType)),
			v.ContentTitle,
			label(string(v.Status)),
			orDash(v.ReviewerID),
			formatTimePtr(v.ReviewDeadline),
			formatTime(v.UpdatedAt),
		}
		if overdue {
			row = append(row, strconv.Itoa(v.DaysOverdue))
		}
		rows = append(rows, row)
	}
	printTable(cmd, cols, rows)
}
