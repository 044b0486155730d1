package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediaflow/internal/content"
)

func newContentCommand(ctx *commandContext) *cobra.Command {
	contentCmd := &cobra.Command{
		Use:   "content",
		Short: "Manage courses and lessons",
	}
	contentCmd.AddCommand(newContentAddCommand(ctx))
	contentCmd.AddCommand(newContentListCommand(ctx))
	contentCmd.AddCommand(newContentShowCommand(ctx))
	return contentCmd
}

type contentView struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Owner    string            `json:"owner"`
	CourseID string            `json:"course_id,omitempty"`
	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func newContentView(item content.Content) contentView {
	v := contentView{
		ID:       item.ID(),
		Type:     string(item.Kind()),
		Title:    item.Title(),
		Owner:    item.Owner(),
		Tags:     item.Tags(),
		Metadata: item.Metadata(),
	}
	if lesson, ok := item.(*content.Lesson); ok {
		v.CourseID = lesson.CourseID
	}
	return v
}

func newContentAddCommand(ctx *commandContext) *cobra.Command {
	var title, owner, course string
	var tags, meta []string

	cmd := &cobra.Command{
		Use:   "add <course|lesson>",
		Short: "Add a course, or a lesson under an existing course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}
			in := content.NewItem{Title: title, OwnerID: owner, CourseID: course, Tags: tags, Metadata: metadata}
			return ctx.withApp(func(a *app) error {
				var item content.Content
				switch strings.ToLower(strings.TrimSpace(args[0])) {
				case "course":
					item, err = a.catalog.AddCourse(cmd.Context(), in)
				case "lesson":
					item, err = a.catalog.AddLesson(cmd.Context(), in)
				default:
					return fmt.Errorf("unknown content type %q (expected course or lesson)", args[0])
				}
				if err != nil {
					return err
				}
				view := newContentView(item)
				return emit(cmd, ctx, view, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Added %s %s\n", view.Type, view.ID)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&owner, "owner", "", "Owning user id")
	cmd.Flags().StringVar(&course, "course", "", "Parent course id (lessons only)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "Metadata key=value (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newContentListCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List courses and lessons",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKindFlag(kindFlag, false)
			if err != nil {
				return err
			}
			return ctx.withApp(func(a *app) error {
				items, err := a.catalog.List(cmd.Context(), kind)
				if err != nil {
					return err
				}
				views := make([]contentView, 0, len(items))
				for _, item := range items {
					views = append(views, newContentView(item))
				}
				return emit(cmd, ctx, views, func() error {
					rows := make([][]string, 0, len(views))
					for _, v := range views {
						rows = append(rows, []string{v.ID, label(v.Type), v.Title, v.Owner, orDash(v.CourseID), orDash(strings.Join(v.Tags, ", "))})
					}
					printTable(cmd, []column{
						textCol("ID"), textCol("Type"), noteCol("Title"), textCol("Owner"), textCol("Course"), noteCol("Tags"),
					}, rows)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&kindFlag, "type", "", "Filter by content type")
	return cmd
}

func newContentShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <content-id>",
		Short: "Show a course or lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				item, err := a.catalog.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				view := newContentView(item)
				return emit(cmd, ctx, view, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "ID:       %s\n", view.ID)
					fmt.Fprintf(out, "Type:     %s\n", label(view.Type))
					fmt.Fprintf(out, "Title:    %s\n", view.Title)
					fmt.Fprintf(out, "Owner:    %s\n", view.Owner)
					if view.CourseID != "" {
						fmt.Fprintf(out, "Course:   %s\n", view.CourseID)
					}
					fmt.Fprintf(out, "Tags:     %s\n", orDash(strings.Join(view.Tags, ", ")))
					fmt.Fprintf(out, "Metadata: %s\n", formatMetadata(view.Metadata))
					return nil
				})
			})
		},
	}
}
