package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediaflow/internal/config"
	"mediaflow/internal/logging"
	"mediaflow/internal/media/ffprobe"
	"mediaflow/internal/media/speech"
	"mediaflow/internal/services"
	"mediaflow/internal/store"
)

// Engine performs one unit of media work per call. It keeps no state between
// calls beyond its collaborators.
type Engine struct {
	cfg      *config.Config
	store    *store.Store
	runner   Runner
	provider speech.Provider
	logger   *slog.Logger
}

// NewEngine wires an engine. A nil runner uses ExecRunner.
func NewEngine(cfg *config.Config, st *store.Store, runner Runner, provider speech.Provider, logger *slog.Logger) *Engine {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Engine{
		cfg:      cfg,
		store:    st,
		runner:   runner,
		provider: provider,
		logger:   logging.NewComponentLogger(logger, "media"),
	}
}

// AssetDir returns the output directory owned by one asset.
func (e *Engine) AssetDir(assetID string) string {
	return filepath.Join(e.cfg.Paths.MediaDir, assetID)
}

func (e *Engine) ffmpeg() string {
	if bin := strings.TrimSpace(e.cfg.Media.FFmpegBinary); bin != "" {
		return bin
	}
	return "ffmpeg"
}

func (e *Engine) ffprobe() string {
	if bin := strings.TrimSpace(e.cfg.Media.FFprobeBinary); bin != "" {
		return bin
	}
	return "ffprobe"
}

// ExtractMetadata probes path and returns its container and stream properties.
func (e *Engine) ExtractMetadata(ctx context.Context, path string) (store.AssetMetadata, error) {
	var meta store.AssetMetadata
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, services.Wrap(services.ErrNotFound, "metadata", "stat source", path, err)
		}
		return meta, services.Wrap(services.ErrMediaProcessing, "metadata", "stat source", path, err)
	}
	if info.IsDir() {
		return meta, services.Wrap(services.ErrValidation, "metadata", "stat source", path+" is a directory", nil)
	}

	probe, err := e.probe(ctx, path)
	if err != nil {
		return meta, err
	}
	if probe.VideoStreamCount() == 0 && probe.AudioStreamCount() == 0 {
		return meta, services.Wrap(services.ErrMediaProcessing, "metadata", "probe", "no audio or video streams", nil)
	}
	duration := probe.DurationSeconds()
	if math.IsNaN(duration) || duration < 0 {
		return meta, services.Wrap(services.ErrMediaProcessing, "metadata", "probe", "unreadable duration "+probe.Format.Duration, nil)
	}

	meta.SizeBytes = probe.SizeBytes()
	if meta.SizeBytes == 0 {
		meta.SizeBytes = info.Size()
	}
	meta.DurationSeconds = duration
	meta.BitRate = probe.BitRate()
	if meta.BitRate == 0 && duration > 0 {
		meta.BitRate = int64(float64(meta.SizeBytes*8) / duration)
	}
	meta.Format = containerFormat(probe.Format.FormatName, path)
	if video, ok := probe.PrimaryVideo(); ok {
		meta.Width = video.Width
		meta.Height = video.Height
		meta.VideoCodec = video.CodecName
		meta.FrameRate = video.FrameRate()
		if video.Width > 0 && video.Height > 0 {
			meta.Resolution = fmt.Sprintf("%dx%d", video.Width, video.Height)
		}
	}
	if audio, ok := probe.PrimaryAudio(); ok {
		meta.AudioCodec = audio.CodecName
		meta.AudioChannels = audio.Channels
	}
	return meta, nil
}

func (e *Engine) probe(ctx context.Context, path string) (ffprobe.Result, error) {
	if timeout := e.cfg.Media.ProbeTimeoutSeconds; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}
	out, err := e.runner.Output(ctx, e.ffprobe(), ffprobe.Args(path)...)
	if err != nil {
		if ctx.Err() != nil {
			return ffprobe.Result{}, services.Wrap(services.ErrTransient, "metadata", "ffprobe", "probe interrupted", err)
		}
		return ffprobe.Result{}, services.Wrap(services.ErrMediaProcessing, "metadata", "ffprobe", "unreadable media", err)
	}
	result, err := ffprobe.Parse(out)
	if err != nil {
		return ffprobe.Result{}, services.Wrap(services.ErrMediaProcessing, "metadata", "ffprobe", "unreadable media", err)
	}
	return result, nil
}

// containerFormat picks the ffprobe format name matching the file extension,
// falling back to the first listed name.
func containerFormat(formatName, path string) string {
	names := strings.Split(formatName, ",")
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, name := range names {
		if strings.TrimSpace(name) == ext && ext != "" {
			return ext
		}
	}
	return strings.TrimSpace(names[0])
}
