package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediaflow/internal/ingest"
)

func newAssetCommand(ctx *commandContext) *cobra.Command {
	assetCmd := &cobra.Command{
		Use:   "asset",
		Short: "Inspect uploaded video assets",
	}
	assetCmd.AddCommand(newAssetStatusCommand(ctx))
	assetCmd.AddCommand(newAssetQualitiesCommand(ctx))
	assetCmd.AddCommand(newAssetJobsCommand(ctx))
	assetCmd.AddCommand(newAssetSubtitlesCommand(ctx))
	return assetCmd
}

func newAssetStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <asset-id>",
		Short: "Show an asset's metadata, renditions and subtitle tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				status, err := a.ingest.GetVideoProcessingStatus(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return emit(cmd, ctx, status, func() error {
					asset := status.Asset
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Asset:      %s\n", asset.ID)
					fmt.Fprintf(out, "File:       %s (%s)\n", asset.OriginalFilename, formatBytes(asset.SizeBytes))
					fmt.Fprintf(out, "Processing: %s\n", label(asset.ProcessingStatus))
					fmt.Fprintf(out, "Duration:   %s\n", formatDuration(asset.DurationSeconds))
					if asset.Width > 0 {
						fmt.Fprintf(out, "Video:      %dx%d %s %s, %.2f fps\n", asset.Width, asset.Height, asset.Format, asset.VideoCodec, asset.FrameRate)
					}
					fmt.Fprintf(out, "Thumbnail:  %s\n", orDash(asset.ThumbnailPath))
					renderRenditions(cmd, status.Renditions)
					renderSubtitleSets(cmd, status.SubtitleSets)
					return nil
				})
			})
		},
	}
}

func newAssetQualitiesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "qualities <asset-id>",
		Short: "List the renditions ready for playback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				renditions, err := a.ingest.GetAvailableQualities(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return emit(cmd, ctx, renditions, func() error {
					renderRenditions(cmd, renditions)
					return nil
				})
			})
		},
	}
}

func newAssetJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <asset-id>",
		Short: "List the jobs processing an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				views, err := a.jobs.GetAssetJobs(cmd.Context(), args[0])
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
}

func newAssetSubtitlesCommand(ctx *commandContext) *cobra.Command {
	var lang, format, output string

	cmd := &cobra.Command{
		Use:   "subtitles <asset-id>",
		Short: "Print an asset's subtitles as SRT, VTT or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app) error {
				if strings.TrimSpace(lang) == "" {
					lang = a.cfg.Subtitles.DefaultLanguage
				}
				subs, err := a.ingest.GetSubtitles(cmd.Context(), args[0], lang, format)
				if err != nil {
					return err
				}
				if strings.TrimSpace(output) != "" {
					if err := os.WriteFile(output, subs.Body, 0o644); err != nil {
						return fmt.Errorf("write subtitles: %w", err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s subtitles to %s\n", subs.Format, output)
					return nil
				}
				_, err = cmd.OutOrStdout().Write(subs.Body)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Subtitle language (defaults to subtitles.default_language)")
	cmd.Flags().StringVar(&format, "format", "srt", "Output format: srt, vtt or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func renderRenditions(cmd *cobra.Command, renditions []ingest.RenditionView) {
	rows := make([][]string, 0, len(renditions))
	for _, r := range renditions {
		size := "-"
		if r.FileSizeBytes > 0 {
			size = formatBytes(r.FileSizeBytes)
		}
		rows = append(rows, []string{
			r.Resolution,
			label(r.QualityTier),
			strconv.Itoa(r.BitrateKbps) + " kbps",
			label(string(r.Status)),
			fmt.Sprintf("%d%%", r.Progress),
			size,
			orDash(r.Error),
		})
	}
	printTable(cmd, []column{
		textCol("Rendition"), textCol("Tier"), numCol("Bitrate"), textCol("Status"),
		numCol("Progress"), numCol("Size"), noteCol("Error"),
	}, rows)
}

func renderSubtitleSets(cmd *cobra.Command, sets []ingest.SubtitleSetView) {
	rows := make([][]string, 0, len(sets))
	for _, s := range sets {
		rows = append(rows, []string{
			s.LanguageName,
			strings.ToUpper(s.Format),
			label(string(s.Status)),
			strconv.Itoa(s.WordCount),
			fmt.Sprintf("%.2f", s.ConfidenceScore),
			orDash(s.Error),
		})
	}
	printTable(cmd, []column{
		textCol("Language"), textCol("Format"), textCol("Status"),
		numCol("Words"), numCol("Confidence"), noteCol("Error"),
	}, rows)
}
