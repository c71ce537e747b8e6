package services

import "context"

type contextKey string

const (
	runIDKey       contextKey = "run_id"
	utteranceIDKey contextKey = "utterance_id"
	stageKey       contextKey = "stage"
)

// WithRunID annotates context with the batch run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the batch run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(runIDKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithUtteranceID annotates context with the utterance identifier.
func WithUtteranceID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, utteranceIDKey, id)
}

// UtteranceIDFromContext extracts the utterance identifier if present.
func UtteranceIDFromContext(ctx context.Context) (int64, bool) {
	switch val := ctx.Value(utteranceIDKey).(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(stageKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}
