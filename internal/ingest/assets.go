package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mediaflow/internal/language"
	"mediaflow/internal/media"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// RenditionView is one rung of an asset's ladder.
type RenditionView struct {
	ID            string               `json:"id"`
	Resolution    string               `json:"resolution"`
	Height        int                  `json:"height"`
	QualityTier   string               `json:"quality_tier"`
	BitrateKbps   int                  `json:"bitrate_kbps"`
	Status        store.ArtifactStatus `json:"status"`
	Progress      int                  `json:"progress"`
	FilePath      string               `json:"file_path,omitempty"`
	FileSizeBytes int64                `json:"file_size_bytes,omitempty"`
	Error         string               `json:"error,omitempty"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// SubtitleSetView summarises one generated subtitle track.
type SubtitleSetView struct {
	ID              string               `json:"id"`
	Language        string               `json:"language"`
	LanguageName    string               `json:"language_name"`
	Format          string               `json:"format"`
	Status          store.ArtifactStatus `json:"status"`
	FilePath        string               `json:"file_path,omitempty"`
	ConfidenceScore float64              `json:"confidence_score"`
	WordCount       int                  `json:"word_count"`
	Error           string               `json:"error,omitempty"`
}

// ProcessingStatus is the full processing picture of one asset.
type ProcessingStatus struct {
	Asset        *store.Asset      `json:"asset"`
	Renditions   []RenditionView   `json:"renditions"`
	SubtitleSets []SubtitleSetView `json:"subtitle_sets"`
}

func renditionView(r *store.Rendition) RenditionView {
	return RenditionView{
		ID:            r.ID,
		Resolution:    r.Resolution,
		Height:        r.Height,
		QualityTier:   r.QualityTier,
		BitrateKbps:   r.BitrateKbps,
		Status:        r.Status,
		Progress:      r.Progress,
		FilePath:      r.FilePath,
		FileSizeBytes: r.FileSizeBytes,
		Error:         r.ErrorMessage,
		CompletedAt:   r.CompletedAt,
	}
}

func (o *Orchestrator) requireAsset(ctx context.Context, operation, assetID string) (*store.Asset, error) {
	if strings.TrimSpace(assetID) == "" {
		return nil, services.Wrap(services.ErrValidation, "ingest", operation, "asset id is required", nil)
	}
	asset, err := o.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", operation, assetID, err)
	}
	if asset == nil {
		return nil, services.Wrap(services.ErrNotFound, "ingest", operation, "asset "+assetID, nil)
	}
	return asset, nil
}

// GetVideoProcessingStatus returns an asset with all its renditions and
// subtitle sets.
func (o *Orchestrator) GetVideoProcessingStatus(ctx context.Context, assetID string) (ProcessingStatus, error) {
	asset, err := o.requireAsset(ctx, "processing status", assetID)
	if err != nil {
		return ProcessingStatus{}, err
	}
	renditions, err := o.store.ListRenditions(ctx, assetID, "")
	if err != nil {
		return ProcessingStatus{}, services.Wrap(services.ErrTransient, "ingest", "processing status", assetID, err)
	}
	sets, err := o.store.ListSubtitleSets(ctx, assetID)
	if err != nil {
		return ProcessingStatus{}, services.Wrap(services.ErrTransient, "ingest", "processing status", assetID, err)
	}
	status := ProcessingStatus{
		Asset:        asset,
		Renditions:   make([]RenditionView, 0, len(renditions)),
		SubtitleSets: make([]SubtitleSetView, 0, len(sets)),
	}
	for _, r := range renditions {
		status.Renditions = append(status.Renditions, renditionView(r))
	}
	for _, set := range sets {
		status.SubtitleSets = append(status.SubtitleSets, SubtitleSetView{
			ID:              set.ID,
			Language:        set.Language,
			LanguageName:    language.DisplayName(set.Language),
			Format:          set.Format,
			Status:          set.Status,
			FilePath:        set.FilePath,
			ConfidenceScore: set.ConfidenceScore,
			WordCount:       set.WordCount,
			Error:           set.ErrorMessage,
		})
	}
	return status, nil
}

// GetAvailableQualities returns only the completed renditions, tallest first.
func (o *Orchestrator) GetAvailableQualities(ctx context.Context, assetID string) ([]RenditionView, error) {
	if _, err := o.requireAsset(ctx, "available qualities", assetID); err != nil {
		return nil, err
	}
	renditions, err := o.store.ListRenditions(ctx, assetID, store.ArtifactCompleted)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "available qualities", assetID, err)
	}
	out := make([]RenditionView, 0, len(renditions))
	for _, r := range renditions {
		out = append(out, renditionView(r))
	}
	return out, nil
}

// Subtitles is a rendered subtitle track.
type Subtitles struct {
	AssetID  string `json:"asset_id"`
	Language string `json:"language"`
	Format   string `json:"format"`
	Body     []byte `json:"-"`
}

// GetSubtitles renders a completed subtitle set as srt, vtt or json. An
// empty format means srt.
func (o *Orchestrator) GetSubtitles(ctx context.Context, assetID, lang, format string) (Subtitles, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = media.FormatSRT
	}
	switch format {
	case media.FormatSRT, media.FormatVTT, media.FormatJSON:
	default:
		return Subtitles{}, services.Wrap(services.ErrValidation, "ingest", "subtitles", fmt.Sprintf("unsupported format %q", format), nil)
	}
	code, err := language.Canonical(lang)
	if err != nil {
		return Subtitles{}, services.Wrap(services.ErrValidation, "ingest", "subtitles", "language", err)
	}
	if _, err := o.requireAsset(ctx, "subtitles", assetID); err != nil {
		return Subtitles{}, err
	}
	set, err := o.store.GetSubtitleSet(ctx, assetID, code)
	if err != nil {
		return Subtitles{}, services.Wrap(services.ErrTransient, "ingest", "subtitles", assetID, err)
	}
	if set == nil {
		return Subtitles{}, services.Wrap(services.ErrNotFound, "ingest", "subtitles", fmt.Sprintf("no %s subtitles for asset %s", code, assetID), nil)
	}
	if set.Status != store.ArtifactCompleted {
		return Subtitles{}, services.Wrap(services.ErrInvalidState, "ingest", "subtitles", fmt.Sprintf("%s subtitles are %s", code, set.Status), nil)
	}
	segments, err := o.store.ListSegments(ctx, set.ID)
	if err != nil {
		return Subtitles{}, services.Wrap(services.ErrTransient, "ingest", "subtitles", set.ID, err)
	}
	body, err := media.Render(format, segments)
	if err != nil {
		return Subtitles{}, services.Wrap(services.ErrValidation, "ingest", "subtitles", "render", err)
	}
	return Subtitles{AssetID: assetID, Language: code, Format: format, Body: body}, nil
}
