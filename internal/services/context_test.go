package services_test

import (
	"context"
	"testing"

	"mediaflow/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-1")
	ctx = services.WithQueue(ctx, "transcode")
	ctx = services.WithAssetID(ctx, "asset-9")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-1" {
		t.Fatalf("unexpected job id: %v %v", id, ok)
	}
	if queue, ok := services.QueueFromContext(ctx); !ok || queue != "transcode" {
		t.Fatalf("unexpected queue: %v %v", queue, ok)
	}
	if asset, ok := services.AssetIDFromContext(ctx); !ok || asset != "asset-9" {
		t.Fatalf("unexpected asset id: %v %v", asset, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithQueue(ctx, "")
	ctx = services.WithJobID(ctx, "")
	if _, ok := services.QueueFromContext(ctx); ok {
		t.Fatal("expected no queue value")
	}
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id value")
	}
}
