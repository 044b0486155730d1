package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediaflow/internal/config"
	"mediaflow/internal/logging"
	"mediaflow/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon ready")

	content := readLog(t, filepath.Join(cfg.Paths.LogDir, "mediaflow.log"))
	if !strings.Contains(content, "daemon ready") {
		t.Fatalf("expected message in log file, got %q", content)
	}
	if strings.Contains(content, "\x1b[") {
		t.Fatalf("expected no ANSI escapes in file output, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message without caller")

	if content := readLog(t, logPath); strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	if content := readLog(t, logPath); !strings.Contains(content, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleSubjectFromContext(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "0123456789abcdef")
	ctx = services.WithQueue(ctx, "transcode")
	ctx = services.WithAssetID(ctx, "asset-1")
	log := logging.WithContext(ctx, logging.NewComponentLogger(logger, "jobs"))
	log.Info("job started", logging.String("rung", "720p"), logging.Error(errors.New("x y")))

	content := readLog(t, logPath)
	for _, fragment := range []string{"INFO jobs [transcode/01234567]: job started", "asset_id=asset-1", "rung=720p", `error="x y"`} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
}

func TestJSONLoggerFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx := services.WithRequestID(context.Background(), "req-1")
	logging.WarnWithContext(logging.WithContext(ctx, logger), "stalled job reclaimed", "job_stalled")

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("unexpected level: %v", payload["level"])
	}
	if payload["correlation_id"] != "req-1" {
		t.Fatalf("unexpected correlation id: %v", payload["correlation_id"])
	}
	if payload["event_type"] != "job_stalled" || payload["error_hint"] == "" {
		t.Fatalf("expected enforced warn fields, got %v", payload)
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", payload)
	}
}

func TestErrorEventsDeriveKindAndHint(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	missing := services.Wrap(services.ErrConfiguration, "media", "ffmpeg", "binary not on PATH", nil)
	logging.ErrorWithContext(logger, "job failed permanently", "job_failed", logging.Error(missing), logging.Attempt(2, 3))
	logging.WarnWithContext(logger, "heartbeat lost", "job_claim_lost", logging.String(logging.FieldErrorHint, "none"))

	lines := strings.Split(strings.TrimSpace(readLog(t, logPath)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	var failed, lost map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &failed); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &lost); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if failed["error_kind"] != "configuration" || failed["attempt"] != "2/3" {
		t.Fatalf("unexpected failure fields: %v", failed)
	}
	if hint, _ := failed["error_hint"].(string); !strings.Contains(hint, "config") {
		t.Fatalf("expected configuration hint, got %q", hint)
	}
	if lost["error_hint"] != "none" || lost["event_type"] != "job_claim_lost" {
		t.Fatalf("caller fields overridden: %v", lost)
	}
	if _, ok := lost["error_kind"]; ok {
		t.Fatalf("error_kind set without an error: %v", lost)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestForcedColorWrapsLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "color.log")
	on := true
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, Color: &on})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Error("boom")
	if content := readLog(t, logPath); !strings.Contains(content, "\x1b[31mERROR\x1b[0m") {
		t.Fatalf("expected coloured level, got %q", content)
	}
}
