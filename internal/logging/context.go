package logging

import (
	"context"
	"log/slog"

	"blockflow/internal/services"
)

const (
	// FieldComponent is the structured logging key for component names.
	FieldComponent = "component"
	// FieldPosition is the structured logging key for the microscope position being processed.
	FieldPosition = "position"
	// FieldStage is the structured logging key for workflow stage names.
	FieldStage = "stage"
	// FieldMode is the structured logging key for the analysis mode.
	FieldMode = "mode"
	// FieldBlock is the structured logging key for a frame block label (frame<start>-<stop>).
	FieldBlock = "block"
	// FieldRunID identifies one invocation of a workflow.
	FieldRunID = "run_id"
	// FieldEventType tags a log line with a machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the next step an operator should take.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if pos, ok := services.PositionFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPosition, pos))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if mode, ok := services.ModeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMode, mode))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(toArgs(fields)...)
}
