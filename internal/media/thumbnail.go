package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"

	"mediaflow/internal/fileutil"
	"mediaflow/internal/services"
)

// ThumbnailRequest describes a still extraction.
type ThumbnailRequest struct {
	AssetID    string
	SourcePath string
	// OffsetSeconds is the frame timestamp. Offsets past the end of a source
	// with known duration fall back to its midpoint.
	OffsetSeconds   float64
	DurationSeconds float64
}

// GenerateThumbnail grabs one frame at the offset, fits it into the configured
// box and writes it as JPEG. It returns the thumbnail path.
func (e *Engine) GenerateThumbnail(ctx context.Context, req ThumbnailRequest) (string, error) {
	if _, err := os.Stat(req.SourcePath); err != nil {
		return "", services.Wrap(services.ErrNotFound, "thumbnail", "stat source", req.SourcePath, err)
	}
	offset := req.OffsetSeconds
	if offset < 0 {
		offset = 0
	}
	if req.DurationSeconds > 0 && offset >= req.DurationSeconds {
		offset = req.DurationSeconds / 2
	}

	scratch, err := os.MkdirTemp(e.cfg.Paths.TempDir, "thumb-"+req.AssetID+"-")
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "thumbnail", "scratch dir", "", err)
	}
	defer os.RemoveAll(scratch)

	frame := filepath.Join(scratch, "frame.png")
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", req.SourcePath,
		"-frames:v", "1",
		"-an", "-sn",
		frame,
	}
	if _, err := e.runner.Output(ctx, e.ffmpeg(), args...); err != nil {
		return "", services.Wrap(services.ErrMediaProcessing, "thumbnail", "extract frame", "", err)
	}

	img, err := imaging.Open(frame)
	if err != nil {
		return "", services.Wrap(services.ErrMediaProcessing, "thumbnail", "decode frame", "", err)
	}
	width, height := e.cfg.Thumbnail.Width, e.cfg.Thumbnail.Height
	if width > 0 && height > 0 {
		img = imaging.Fit(img, width, height, imaging.Lanczos)
	}

	quality := e.cfg.Thumbnail.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	dest := filepath.Join(e.AssetDir(req.AssetID), "thumbnails", "thumbnail.jpg")
	err = fileutil.WriteFileAtomic(dest, 0o644, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	})
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "thumbnail", "write", fmt.Sprintf("save %s", dest), err)
	}
	return dest, nil
}
