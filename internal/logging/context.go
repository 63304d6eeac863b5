package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type runCtxKey struct{}
type repoCtxKey struct{}
type patchCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation fields from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if id := RunIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("run.id", id))
	}
	if repo := RepositoryFromContext(ctx); repo != "" {
		fields = append(fields, zap.String("repository", repo))
	}
	if id := PatchIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("patch.id", id))
	}

	return fields
}

// WithRunID tags every log line of one CLI invocation.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext returns the run id, or "".
func RunIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(runCtxKey{}).(string)
	return s
}

// WithRepository records the owner/repo being processed.
func WithRepository(ctx context.Context, repo string) context.Context {
	return context.WithValue(ctx, repoCtxKey{}, repo)
}

// RepositoryFromContext returns the repository, or "".
func RepositoryFromContext(ctx context.Context) string {
	s, _ := ctx.Value(repoCtxKey{}).(string)
	return s
}

// WithPatchID records the patch (pull request or commit) being processed.
func WithPatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, patchCtxKey{}, id)
}

// PatchIDFromContext returns the patch id, or "".
func PatchIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(patchCtxKey{}).(string)
	return s
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
