package testsupport

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

// ProbeJSON returns ffprobe output for a 1080p h264/aac mp4 of the given length.
func ProbeJSON(durationSeconds float64) []byte {
	return []byte(fmt.Sprintf(`{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30/1"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 2, "sample_rate": "48000"}
  ],
  "format": {"duration": "%.6f", "size": "157286400", "bit_rate": "2097152", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`, durationSeconds))
}

// FakeRunner stands in for ffmpeg and ffprobe. It writes plausible outputs for
// frame grabs, audio extraction and encodes, and records every call.
type FakeRunner struct {
	mu sync.Mutex

	Probe    []byte
	ProbeErr error
	// RungFailures maps a rung label ("720p") to the number of encodes that
	// fail before it succeeds; a negative count always fails.
	RungFailures map[string]int
	AudioErr     error
	FrameErr     error
	calls        [][]string
}

// NewFakeRunner returns a runner probing as a 600 second 1080p file.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Probe: ProbeJSON(600), RungFailures: map[string]int{}}
}

// Calls returns a copy of the recorded argument lists, binary first.
func (f *FakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = slices.Clone(c)
	}
	return out
}

// EncodeCount returns how many encodes ran for a rung label.
func (f *FakeRunner) EncodeCount(label string) int {
	count := 0
	for _, call := range f.Calls() {
		if rungLabel(call) == label {
			count++
		}
	}
	return count
}

// SetRungFailures updates the failure budget for a rung.
func (f *FakeRunner) SetRungFailures(label string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RungFailures[label] = n
}

func (f *FakeRunner) record(name string, args []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
}

// Output implements media.Runner.
func (f *FakeRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.record(name, args)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if slices.Contains(args, "-show_format") {
		if f.ProbeErr != nil {
			return nil, f.ProbeErr
		}
		return f.Probe, nil
	}
	target := args[len(args)-1]
	switch {
	case strings.HasSuffix(target, ".png"):
		if f.FrameErr != nil {
			return nil, f.FrameErr
		}
		img := imaging.New(1280, 720, color.NRGBA{R: 30, G: 90, B: 160, A: 255})
		return nil, imaging.Save(img, target)
	case strings.HasSuffix(target, ".wav"):
		if f.AudioErr != nil {
			return nil, f.AudioErr
		}
		return nil, os.WriteFile(target, []byte("RIFF....WAVEfmt "), 0o644)
	}
	return nil, nil
}

// Stream implements media.Runner.
func (f *FakeRunner) Stream(ctx context.Context, onLine func(string), name string, args ...string) error {
	f.record(name, args)
	if err := ctx.Err(); err != nil {
		return err
	}
	label := rungLabel(append([]string{name}, args...))
	f.mu.Lock()
	remaining, failing := f.RungFailures[label]
	if failing && remaining != 0 {
		if remaining > 0 {
			f.RungFailures[label] = remaining - 1
		}
		f.mu.Unlock()
		return fmt.Errorf("ffmpeg: exit status 1: encoder error for %s", label)
	}
	f.mu.Unlock()

	output := args[len(args)-1]
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(output, make([]byte, 4096), 0o644); err != nil {
		return err
	}
	if onLine != nil {
		for _, line := range []string{"out_time_us=150000000", "progress=continue", "out_time_us=300000000", "progress=continue", "progress=end"} {
			onLine(line)
		}
	}
	return nil
}

func rungLabel(call []string) string {
	for _, arg := range call {
		if height, ok := strings.CutPrefix(arg, "scale=-2:"); ok {
			return height + "p"
		}
	}
	return ""
}
