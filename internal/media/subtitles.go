package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mediaflow/internal/fileutil"
	"mediaflow/internal/language"
	"mediaflow/internal/logging"
	"mediaflow/internal/media/speech"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// SubtitleRequest describes a subtitle generation run.
type SubtitleRequest struct {
	AssetID    string
	SourcePath string
	Language   string
}

// SubtitleResult summarises a completed subtitle set.
type SubtitleResult struct {
	SubtitleID string  `json:"subtitle_id"`
	Language   string  `json:"language"`
	FilePath   string  `json:"file_path"`
	Segments   int     `json:"segments"`
	WordCount  int     `json:"word_count"`
	Confidence float64 `json:"confidence"`
}

// GenerateSubtitles extracts mono 16 kHz audio into a scratch directory,
// transcribes it, persists the segments and writes an SRT file. The scratch
// directory is removed on every return path.
func (e *Engine) GenerateSubtitles(ctx context.Context, req SubtitleRequest) (SubtitleResult, error) {
	var result SubtitleResult
	if e.provider == nil {
		return result, services.Wrap(services.ErrConfiguration, "subtitles", "provider", "no speech provider configured", nil)
	}
	lang, err := language.Canonical(req.Language)
	if err != nil {
		return result, services.Wrap(services.ErrValidation, "subtitles", "language", "", err)
	}
	if _, err := os.Stat(req.SourcePath); err != nil {
		return result, services.Wrap(services.ErrNotFound, "subtitles", "stat source", req.SourcePath, err)
	}

	set, err := e.store.StartSubtitleSet(ctx, req.AssetID, lang, FormatSRT)
	if err != nil {
		return result, services.Wrap(services.ErrTransient, "subtitles", "start set", "", err)
	}
	result.SubtitleID = set.ID
	result.Language = lang

	fail := func(cause error) (SubtitleResult, error) {
		if err := e.store.FailSubtitleSet(context.WithoutCancel(ctx), set.ID, cause.Error()); err != nil {
			e.logger.Warn("record subtitle failure", logging.Error(err))
		}
		return result, cause
	}

	scratch, err := os.MkdirTemp(e.cfg.Paths.TempDir, "subtitle-"+req.AssetID+"-")
	if err != nil {
		return fail(services.Wrap(services.ErrTransient, "subtitles", "scratch dir", "", err))
	}
	defer os.RemoveAll(scratch)

	audio := filepath.Join(scratch, "audio.wav")
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", req.SourcePath,
		"-map", "0:a:0",
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		audio,
	}
	if _, err := e.runner.Output(ctx, e.ffmpeg(), args...); err != nil {
		return fail(services.Wrap(services.ErrMediaProcessing, "subtitles", "extract audio", "", err))
	}

	raw, err := e.provider.Transcribe(ctx, speech.Request{AudioPath: audio, Language: lang, WorkDir: scratch})
	if err != nil {
		return fail(services.Wrap(services.ErrExternalTool, "subtitles", "transcribe", e.provider.Name(), err))
	}
	segments := normalizeSegments(raw)

	words := 0
	confidence := 0.0
	for _, seg := range segments {
		words += len(strings.Fields(seg.Text))
		confidence += seg.Confidence
	}
	if len(segments) > 0 {
		confidence /= float64(len(segments))
	}

	dest := filepath.Join(e.AssetDir(req.AssetID), "subtitles", lang+"."+FormatSRT)
	if err := fileutil.WriteBytesAtomic(dest, RenderSRT(segments), 0o644); err != nil {
		return fail(services.Wrap(services.ErrTransient, "subtitles", "write srt", dest, err))
	}
	if err := e.store.CompleteSubtitleSet(ctx, set.ID, dest, segments, confidence, words); err != nil {
		return fail(services.Wrap(services.ErrTransient, "subtitles", "persist", "", err))
	}

	result.FilePath = dest
	result.Segments = len(segments)
	result.WordCount = words
	result.Confidence = confidence
	logging.WithContext(ctx, e.logger).Info("subtitles generated",
		logging.String("language", lang),
		logging.Int("segments", len(segments)),
		logging.Int("words", words),
		logging.String("confidence", fmt.Sprintf("%.2f", confidence)),
		logging.String(logging.FieldEventType, "subtitles_completed"),
	)
	return result, nil
}

// normalizeSegments orders segments by start, drops empty text and clamps
// confidence into [0, 1].
func normalizeSegments(raw []speech.Segment) []store.Segment {
	sorted := append([]speech.Segment(nil), raw...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	out := make([]store.Segment, 0, len(sorted))
	for _, seg := range sorted {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start := max(seg.Start, 0)
		end := max(seg.End, start)
		conf := min(max(seg.Confidence, 0), 1)
		out = append(out, store.Segment{Order: len(out), Start: start, End: end, Text: text, Confidence: conf})
	}
	return out
}
