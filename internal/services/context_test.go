package services_test

import (
	"context"
	"testing"

	"blockflow/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPosition(ctx, "xy01")
	ctx = services.WithStage(ctx, "track")
	ctx = services.WithMode(ctx, "phase")
	ctx = services.WithRunID(ctx, "run-123")

	if pos, ok := services.PositionFromContext(ctx); !ok || pos != "xy01" {
		t.Fatalf("unexpected position: %v %v", pos, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "track" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if mode, ok := services.ModeFromContext(ctx); !ok || mode != "phase" {
		t.Fatalf("unexpected mode: %v %v", mode, ok)
	}
	if rid, ok := services.RunIDFromContext(ctx); !ok || rid != "run-123" {
		t.Fatalf("unexpected run id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithPosition(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected blank stage to be ignored")
	}
	if _, ok := services.PositionFromContext(ctx); ok {
		t.Fatal("expected blank position to be ignored")
	}
}
