package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("sagitta")

// StartSpan opens a span named spanName with the given attributes. When no
// TracerProvider has been configured (the common case outside production),
// the OpenTelemetry SDK's default no-op implementation makes this call and
// every method on the returned span free of side effects, so callers can
// unconditionally `defer span.End()` without checking whether tracing is on.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// StartLLMSpan mirrors manifold's StartRequestSpan: one span per LLM call,
// tagged with model/tool/message counts for latency and fan-out analysis.
func StartLLMSpan(ctx context.Context, name, model string, toolCount, messageCount int) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		attribute.String("llm.model", model),
		attribute.Int("llm.tools", toolCount),
		attribute.Int("llm.messages", messageCount),
	)
}

// RecordTokenUsage annotates the active span with token accounting for a
// completed LLM call. The provider adapters in internal/llmport do not call it.
func RecordTokenUsage(span trace.Span, promptTokens, completionTokens, totalTokens int) {
	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", promptTokens),
		attribute.Int("llm.usage.completion_tokens", completionTokens),
		attribute.Int("llm.usage.total_tokens", totalTokens),
	)
}
