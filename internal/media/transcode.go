package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mediaflow/internal/fileutil"
	"mediaflow/internal/logging"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// TranscodeRequest describes one ladder run for an asset.
type TranscodeRequest struct {
	AssetID    string
	SourcePath string
	Ladder     []string
	// DurationSeconds scales ffmpeg progress; the source is probed when zero.
	DurationSeconds float64
	// Progress receives overall completion (0-100) across all rungs.
	Progress func(percent int)
}

// RenditionOutcome is the final state of one rung.
type RenditionOutcome struct {
	RenditionID string `json:"rendition_id"`
	Resolution  string `json:"resolution"`
	Status      string `json:"status"`
	FilePath    string `json:"file_path,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	Reused      bool   `json:"reused,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Transcode encodes every rung independently. A failed rung never stops or
// rolls back its siblings; the call fails after all rungs ran if any rung
// failed. Rungs completed by an earlier attempt are kept as they are.
func (e *Engine) Transcode(ctx context.Context, req TranscodeRequest) ([]RenditionOutcome, error) {
	rungs, err := ParseLadder(req.Ladder)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "transcode", "parse ladder", "", err)
	}
	if _, err := os.Stat(req.SourcePath); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "transcode", "stat source", req.SourcePath, err)
	}
	duration := req.DurationSeconds
	if duration <= 0 {
		if probe, err := e.probe(ctx, req.SourcePath); err == nil {
			duration = probe.DurationSeconds()
		}
	}

	logger := logging.WithContext(ctx, e.logger)
	outDir := filepath.Join(e.AssetDir(req.AssetID), "renditions")
	outcomes := make([]RenditionOutcome, 0, len(rungs))
	var failed []string
	for i, rung := range rungs {
		if err := ctx.Err(); err != nil {
			return outcomes, services.Wrap(services.ErrTransient, "transcode", "ladder", "interrupted", err)
		}
		report := func(rungPercent int) {
			if req.Progress != nil {
				req.Progress((i*100 + rungPercent) / len(rungs))
			}
		}
		outcome := e.transcodeRung(ctx, req, rung, filepath.Join(outDir, rung.Label+".mp4"), duration, report)
		outcomes = append(outcomes, outcome)
		if outcome.Status == string(store.ArtifactFailed) {
			failed = append(failed, rung.Label)
			logger.Warn("rendition failed",
				logging.String("resolution", rung.Label),
				logging.String("error", outcome.Error),
				logging.String(logging.FieldEventType, "rendition_failed"),
			)
			continue
		}
		logger.Info("rendition ready",
			logging.String("resolution", rung.Label),
			logging.Int64("size_bytes", outcome.SizeBytes),
			logging.Bool("reused", outcome.Reused),
			logging.String(logging.FieldEventType, "rendition_completed"),
		)
		report(100)
	}
	if len(failed) > 0 {
		return outcomes, services.Wrap(services.ErrMediaProcessing, "transcode", "ladder",
			fmt.Sprintf("%d of %d renditions failed: %s", len(failed), len(rungs), strings.Join(failed, ", ")), nil)
	}
	return outcomes, nil
}

func (e *Engine) transcodeRung(ctx context.Context, req TranscodeRequest, rung Rung, output string, duration float64, report func(int)) RenditionOutcome {
	outcome := RenditionOutcome{Resolution: rung.Label, FilePath: output}

	existing, err := e.store.GetRendition(ctx, req.AssetID, rung.Label)
	if err == nil && existing != nil && existing.Status == store.ArtifactCompleted {
		if size, statErr := fileutil.FileSize(existing.FilePath); statErr == nil && size == existing.FileSizeBytes {
			outcome.RenditionID = existing.ID
			outcome.Status = string(store.ArtifactCompleted)
			outcome.FilePath = existing.FilePath
			outcome.SizeBytes = size
			outcome.Reused = true
			return outcome
		}
	}

	row, err := e.store.ResetRendition(ctx, &store.Rendition{
		AssetID:     req.AssetID,
		Resolution:  rung.Label,
		Height:      rung.Height,
		QualityTier: rung.Tier.Name,
		BitrateKbps: rung.BitrateKbps,
		FilePath:    output,
	})
	if err != nil {
		outcome.Status = string(store.ArtifactFailed)
		outcome.Error = err.Error()
		return outcome
	}
	outcome.RenditionID = row.ID

	fail := func(cause error) RenditionOutcome {
		outcome.Status = string(store.ArtifactFailed)
		outcome.Error = cause.Error()
		if err := e.store.FailRendition(context.WithoutCancel(ctx), row.ID, cause.Error()); err != nil {
			e.logger.Warn("record rendition failure", logging.Error(err))
		}
		return outcome
	}

	if err := e.store.StartRendition(ctx, row.ID); err != nil {
		return fail(err)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fail(fmt.Errorf("ensure rendition dir: %w", err))
	}

	partial := output + ".part"
	tracker := progressTracker{duration: duration}
	onLine := func(line string) {
		percent, changed := tracker.observe(line)
		if !changed {
			return
		}
		if err := e.store.UpdateRenditionProgress(ctx, row.ID, percent); err != nil {
			e.logger.Debug("rendition progress update failed", logging.Error(err))
		}
		report(percent)
	}
	if err := e.runner.Stream(ctx, onLine, e.ffmpeg(), rung.ffmpegArgs(req.SourcePath, partial)...); err != nil {
		_ = os.Remove(partial)
		return fail(fmt.Errorf("encode %s: %w", rung.Label, err))
	}
	if err := os.Rename(partial, output); err != nil {
		_ = os.Remove(partial)
		return fail(fmt.Errorf("finalize %s: %w", rung.Label, err))
	}
	size, err := fileutil.FileSize(output)
	if err != nil {
		return fail(fmt.Errorf("stat %s: %w", rung.Label, err))
	}
	if err := e.store.CompleteRendition(ctx, row.ID, size); err != nil {
		return fail(err)
	}
	outcome.Status = string(store.ArtifactCompleted)
	outcome.SizeBytes = size
	return outcome
}

// progressTracker converts ffmpeg -progress key=value lines into percentages.
type progressTracker struct {
	duration float64
	last     int
}

func (p *progressTracker) observe(line string) (int, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}
	var percent int
	switch key {
	case "out_time_us", "out_time_ms":
		// Both keys carry microseconds.
		if p.duration <= 0 {
			return 0, false
		}
		micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || micros < 0 {
			return 0, false
		}
		percent = int(float64(micros) / 1e6 / p.duration * 100)
		if percent > 99 {
			percent = 99
		}
	case "progress":
		if strings.TrimSpace(value) != "end" {
			return 0, false
		}
		percent = 100
	default:
		return 0, false
	}
	if percent <= p.last {
		return 0, false
	}
	p.last = percent
	return percent, true
}
