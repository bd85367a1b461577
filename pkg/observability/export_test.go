package observability

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// BuildResource exposes buildResource for tests.
func BuildResource(cfg Config) (*resource.Resource, error) {
	return buildResource(cfg)
}

// RootSampled reports whether a root span started under the sampler
// selected for cfg is sampled.
func RootSampled(cfg Config) bool {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(selectSampler(cfg)))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("sampler").Start(context.Background(), "root")
	defer span.End()

	return span.SpanContext().IsSampled()
}
