package monitor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "stonebox"

// StartSpan starts a span on the global TracerProvider. When no provider is
// installed this is a no-op span, so the library adds no tracing overhead
// unless the embedding application opts in.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// Common attribute keys recorded on execution spans.
var (
	AttrEnvironmentID = attribute.Key("stonebox.environment.id")
	AttrLanguage      = attribute.Key("stonebox.language")
	AttrBackend       = attribute.Key("stonebox.backend")
	AttrExitCode      = attribute.Key("stonebox.exit_code")
)
