package media

import (
	"fmt"
	"strconv"
	"strings"
)

// Tier is a fixed encoder parameter set.
type Tier struct {
	Name   string
	CRF    int
	Preset string
}

// Quality tiers, chosen by rung height.
var (
	TierHigh   = Tier{Name: "high", CRF: 20, Preset: "slow"}
	TierMedium = Tier{Name: "medium", CRF: 23, Preset: "medium"}
	TierLow    = Tier{Name: "low", CRF: 26, Preset: "fast"}
)

// Rung is one resolution of the transcode ladder.
type Rung struct {
	Label       string
	Height      int
	Tier        Tier
	BitrateKbps int
}

var knownBitrates = map[int]int{
	2160: 16000,
	1440: 9000,
	1080: 5000,
	720:  2800,
	480:  1400,
	360:  800,
	240:  400,
}

// ParseRung converts a label such as "720p" into a rung.
func ParseRung(label string) (Rung, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	digits, ok := strings.CutSuffix(normalized, "p")
	if !ok {
		return Rung{}, fmt.Errorf("rung %q: expected <height>p", label)
	}
	height, err := strconv.Atoi(digits)
	if err != nil || height < 144 || height > 4320 || height%2 != 0 {
		return Rung{}, fmt.Errorf("rung %q: unsupported height", label)
	}
	bitrate, ok := knownBitrates[height]
	if !ok {
		// Roughly linear in pixel count between the named rungs.
		bitrate = height * height / 230
	}
	return Rung{Label: normalized, Height: height, Tier: tierFor(height), BitrateKbps: bitrate}, nil
}

// ParseLadder parses every label, dropping duplicates while keeping order.
func ParseLadder(labels []string) ([]Rung, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("ladder is empty")
	}
	rungs := make([]Rung, 0, len(labels))
	seen := make(map[int]struct{}, len(labels))
	for _, label := range labels {
		rung, err := ParseRung(label)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[rung.Height]; ok {
			continue
		}
		seen[rung.Height] = struct{}{}
		rungs = append(rungs, rung)
	}
	return rungs, nil
}

func tierFor(height int) Tier {
	switch {
	case height >= 1080:
		return TierHigh
	case height >= 480:
		return TierMedium
	default:
		return TierLow
	}
}

// ffmpegArgs builds the encode command for one rung.
func (r Rung) ffmpegArgs(source, output string) []string {
	return []string{
		"-y", "-hide_banner", "-loglevel", "error", "-nostats",
		"-i", source,
		"-map", "0:v:0", "-map", "0:a:0?",
		"-vf", fmt.Sprintf("scale=-2:%d", r.Height),
		"-c:v", "libx264",
		"-preset", r.Tier.Preset,
		"-crf", strconv.Itoa(r.Tier.CRF),
		"-maxrate", fmt.Sprintf("%dk", r.BitrateKbps),
		"-bufsize", fmt.Sprintf("%dk", r.BitrateKbps*2),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "128k", "-ac", "2",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-f", "mp4",
		output,
	}
}
