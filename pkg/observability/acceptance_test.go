package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
	"github.com/Sumatoshi-tech/rbarena/pkg/workload"
)

// TestAcceptance_EndToEnd verifies all three observability signals (traces,
// metrics, structured logs with trace context) work together in a single
// workload run.
func TestAcceptance_EndToEnd(t *testing.T) {
	t.Parallel()

	spanExporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanExporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	tracer := tp.Tracer("rbarena")

	metricReader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader))

	tree := rbtree.New()

	tm, err := observability.NewTreeMetrics(mp.Meter("rbarena"), tree)
	require.NoError(t, err)

	var logBuf bytes.Buffer

	innerHandler := slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewTracingHandler(innerHandler, "rbarena", "test", observability.ModeBench))

	ctx, rootSpan := tracer.Start(context.Background(), "rbarena.bench")

	cfg := workload.DefaultConfig()
	cfg.Keys = 300

	result, err := workload.Run(ctx, tree, cfg, tm)
	require.NoError(t, err)

	logger.InfoContext(ctx, "workload.complete", "nodes", tree.Len())

	rootSpan.End()

	spans := spanExporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "rbarena.bench", spans[0].Name)

	var rm metricdata.ResourceMetrics

	require.NoError(t, metricReader.Collect(ctx, &rm))

	opsTotal := findMetric(rm, "rbarena.ops.total")
	require.NotNil(t, opsTotal)
	assert.Equal(t, int64(result.Inserted+result.Deleted), sumInt64(t, opsTotal))

	require.NotNil(t, findMetric(rm, "rbarena.op.duration.seconds"))

	records := findMetric(rm, "rbarena.arena.records")
	require.NotNil(t, records)
	assert.Equal(t, int64(tree.Len()), sumInt64(t, records))

	var logRecord map[string]any

	require.NoError(t, json.Unmarshal(logBuf.Bytes(), &logRecord))

	assert.Equal(t, spans[0].SpanContext.TraceID().String(), logRecord["trace_id"])
	assert.Contains(t, logRecord, "span_id")
	assert.Equal(t, "rbarena", logRecord["service"])
	assert.InDelta(t, tree.Len(), logRecord["nodes"], 0)
}
