package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mediaflow/internal/config"
)

// Request is one transcription call. AudioPath is mono 16 kHz PCM.
type Request struct {
	AudioPath string
	Language  string
	// WorkDir receives provider scratch output. It is removed by the caller.
	WorkDir string
}

// Segment is a timed transcription result. Times are seconds from the start.
type Segment struct {
	Start      float64
	End        float64
	Text       string
	Confidence float64
}

// Provider turns speech audio into ordered segments.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, req Request) ([]Segment, error)
}

// CommandRunner executes an external command, returning its combined output on failure.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Provider names accepted by config.
const (
	ProviderWhisperX = "whisperx"
	ProviderStatic   = "static"
)

// New builds the provider selected in cfg.
func New(cfg *config.Config) (Provider, error) {
	if cfg == nil {
		return nil, errors.New("speech provider: nil config")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Subtitles.Provider)) {
	case ProviderWhisperX, "":
		return NewWhisperX(WhisperXConfig{
			Model:       cfg.Subtitles.WhisperXModel,
			CUDAEnabled: cfg.Subtitles.WhisperXCUDAEnabled,
			VADMethod:   cfg.Subtitles.WhisperXVADMethod,
			HFToken:     cfg.Subtitles.WhisperXHuggingFace,
		}), nil
	case ProviderStatic:
		return &StaticProvider{}, nil
	default:
		return nil, fmt.Errorf("speech provider: unknown provider %q", cfg.Subtitles.Provider)
	}
}

// StaticProvider returns a fixed transcript. It backs offline installs and tests.
type StaticProvider struct {
	Segments []Segment
	Err      error
	// Calls records the requests seen, in order.
	Calls []Request
}

// Name implements Provider.
func (p *StaticProvider) Name() string { return ProviderStatic }

// Transcribe implements Provider.
func (p *StaticProvider) Transcribe(ctx context.Context, req Request) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return nil, p.Err
	}
	return append([]Segment(nil), p.Segments...), nil
}
