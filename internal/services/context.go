package services

import "context"

type contextKey string

const (
	positionKey contextKey = "position"
	stageKey    contextKey = "stage"
	modeKey     contextKey = "mode"
	runIDKey    contextKey = "run_id"
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPosition annotates context with the position being processed.
func WithPosition(ctx context.Context, position string) context.Context {
	return withString(ctx, positionKey, position)
}

// PositionFromContext returns the position name if present.
func PositionFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, positionKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithMode annotates context with the analysis mode name.
func WithMode(ctx context.Context, mode string) context.Context {
	return withString(ctx, modeKey, mode)
}

// ModeFromContext returns the analysis mode if present.
func ModeFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, modeKey)
}

// WithRunID annotates context with the invocation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey, id)
}

// RunIDFromContext extracts the invocation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runIDKey)
}
