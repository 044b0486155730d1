package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"mediaflow/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrMediaProcessing, "transcode", "encode", "720p failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrMediaProcessing) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcode", "encode", "720p failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{services.Wrap(services.ErrValidation, "jobs", "decode", "bad payload", nil), false},
		{services.Wrap(services.ErrNotFound, "jobs", "lookup", "asset missing", nil), false},
		{services.Wrap(services.ErrConfiguration, "speech", "init", "no provider", nil), false},
		{services.Wrap(services.ErrInvalidState, "workflow", "assign", "draft", nil), false},
		{services.Wrap(services.ErrMediaProcessing, "probe", "ffprobe", "corrupt", nil), true},
		{services.Wrap(services.ErrTransient, "store", "write", "disk", nil), true},
		{fmt.Errorf("plain: %w", errors.New("io")), true},
	}
	for _, tc := range tests {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestKindLabels(t *testing.T) {
	if kind := services.Kind(services.Wrap(services.ErrInvalidTransition, "workflow", "move", "", nil)); kind != "invalid_transition" {
		t.Fatalf("unexpected kind %q", kind)
	}
	if kind := services.Kind(errors.New("x")); kind != "transient" {
		t.Fatalf("unexpected kind %q", kind)
	}
	if kind := services.Kind(nil); kind != "" {
		t.Fatalf("expected empty kind for nil, got %q", kind)
	}
}
