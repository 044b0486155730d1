package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"mediaflow/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "mediaflow")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "mediaflow.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Ops.Bind != "127.0.0.1:7488" {
		t.Fatalf("unexpected ops bind: %q", cfg.Ops.Bind)
	}
	if got := strings.Join(cfg.Transcode.Ladder, ","); got != "1080p,720p,480p" {
		t.Fatalf("unexpected default ladder: %s", got)
	}
	if cfg.Jobs.Transcode.MaxAttempts != 3 || cfg.Jobs.Subtitle.MaxAttempts != 2 {
		t.Fatalf("unexpected attempt budgets: %+v", cfg.Jobs)
	}
	if cfg.Jobs.Subtitle.BackoffBaseSeconds != 5 || cfg.Jobs.Metadata.BackoffBaseSeconds != 3 {
		t.Fatalf("unexpected backoff bases: %+v", cfg.Jobs)
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
data_dir = "~/data"
media_dir = "~/media"

[transcode]
ladder = ["720P", " 480p ", "720p"]

[subtitles]
provider = "static"

[jobs.transcode]
concurrency = 3
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config file to be used, got resolved=%q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "data") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if got := strings.Join(cfg.Transcode.Ladder, ","); got != "720p,480p" {
		t.Fatalf("expected ladder normalized and deduplicated, got %s", got)
	}
	if cfg.Subtitles.Provider != "static" {
		t.Fatalf("unexpected provider: %q", cfg.Subtitles.Provider)
	}
	if cfg.Jobs.Transcode.Concurrency != 3 {
		t.Fatalf("unexpected transcode concurrency: %d", cfg.Jobs.Transcode.Concurrency)
	}
	if cfg.Jobs.Transcode.MaxAttempts != 3 {
		t.Fatalf("expected default attempts to survive partial override, got %d", cfg.Jobs.Transcode.MaxAttempts)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"heartbeat order", func(c *config.Config) { c.Jobs.HeartbeatTimeout = c.Jobs.HeartbeatInterval }, "heartbeat_timeout"},
		{"bad rung", func(c *config.Config) { c.Transcode.Ladder = []string{"hd"} }, "transcode.ladder"},
		{"zero concurrency", func(c *config.Config) { c.Jobs.Metadata.Concurrency = 0 }, "jobs.metadata.concurrency"},
		{"negative backoff", func(c *config.Config) { c.Jobs.Thumbnail.BackoffBaseSeconds = -1 }, "jobs.thumbnail.backoff_base_seconds"},
		{"provider", func(c *config.Config) { c.Subtitles.Provider = "cloud" }, "subtitles.provider"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"thumbnail box", func(c *config.Config) { c.Thumbnail.Width = 0 }, "thumbnail.width"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLogLevelEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MEDIAFLOW_LOG_LEVEL", "DEBUG")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected env level override, got %q", cfg.Logging.Level)
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if parsed.Jobs.Transcode.MaxAttempts != 3 {
		t.Fatalf("unexpected sample transcode attempts: %d", parsed.Jobs.Transcode.MaxAttempts)
	}
	t.Setenv("HOME", dir)
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not validate: %v", err)
	}
}
