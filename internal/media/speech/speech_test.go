package speech_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"mediaflow/internal/media/speech"
	"mediaflow/internal/testsupport"
)

func TestWhisperXTranscribeParsesJSON(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "audio.wav")
	testsupport.WriteFile(t, audio, 128)

	provider := speech.NewWhisperX(speech.WhisperXConfig{Model: "small"})
	var gotName string
	var gotArgs []string
	provider.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		payload := `{"segments":[
  {"text":" Hello there. ","start":0.5,"end":1.75,"words":[{"word":"Hello","score":0.9},{"word":"there.","score":0.7}]},
  {"text":"   ","start":2.0,"end":2.5},
  {"text":"Unaligned","start":3.0,"end":4.0}
]}`
		return os.WriteFile(filepath.Join(dir, "audio.json"), []byte(payload), 0o644)
	})

	segments, err := provider.Transcribe(context.Background(), speech.Request{AudioPath: audio, Language: "english", WorkDir: dir})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if gotName != speech.UVXCommand {
		t.Fatalf("expected uvx, got %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"--model small", "--language en", "--output_format json", "--device cpu"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in args: %s", want, joined)
		}
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "Hello there." || segments[0].Start != 0.5 || segments[0].End != 1.75 {
		t.Fatalf("unexpected first segment: %+v", segments[0])
	}
	if segments[0].Confidence < 0.799 || segments[0].Confidence > 0.801 {
		t.Fatalf("expected mean word score 0.8, got %v", segments[0].Confidence)
	}
	if segments[1].Confidence != 0 {
		t.Fatalf("expected zero confidence for unaligned segment, got %v", segments[1].Confidence)
	}
}

func TestWhisperXPyannoteAddsToken(t *testing.T) {
	dir := t.TempDir()
	provider := speech.NewWhisperX(speech.WhisperXConfig{VADMethod: speech.VADMethodPyannote, HFToken: "hf_x", CUDAEnabled: true})
	var gotArgs []string
	provider.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotArgs = args
		return os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"segments":[]}`), 0o644)
	})
	if _, err := provider.Transcribe(context.Background(), speech.Request{AudioPath: filepath.Join(dir, "a.wav"), WorkDir: dir}); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if !slices.Contains(gotArgs, "hf_x") || !slices.Contains(gotArgs, speech.CUDADevice) {
		t.Fatalf("expected token and cuda device in args: %v", gotArgs)
	}
	if slices.Contains(gotArgs, "--language") {
		t.Fatalf("expected no language flag: %v", gotArgs)
	}
}

func TestWhisperXRunnerFailure(t *testing.T) {
	provider := speech.NewWhisperX(speech.WhisperXConfig{})
	provider.WithCommandRunner(func(context.Context, string, ...string) error {
		return errors.New("exit status 1: CUDA out of memory")
	})
	_, err := provider.Transcribe(context.Background(), speech.Request{AudioPath: filepath.Join(t.TempDir(), "a.wav")})
	if err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected runner error, got %v", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	provider, err := speech.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if provider.Name() != speech.ProviderStatic {
		t.Fatalf("expected static provider, got %s", provider.Name())
	}
	cfg.Subtitles.Provider = "whisperx"
	provider, err = speech.New(cfg)
	if err != nil || provider.Name() != speech.ProviderWhisperX {
		t.Fatalf("expected whisperx provider, got %v err=%v", provider, err)
	}
	cfg.Subtitles.Provider = "cloud"
	if _, err := speech.New(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
