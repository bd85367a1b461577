package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
	"github.com/Sumatoshi-tech/rbarena/pkg/workload"
)

const (
	metricOpsTotal      = "rbarena.ops.total"
	metricOpDuration    = "rbarena.op.duration.seconds"
	metricArenaRecords  = "rbarena.arena.records"
	metricArenaCapacity = "rbarena.arena.capacity"
	metricArenaFree     = "rbarena.arena.free"
	metricArenaBytes    = "rbarena.arena.reserved.bytes"

	attrOp     = "op"
	attrResult = "result"

	resultHit  = "hit"
	resultMiss = "miss"
)

// durationBucketBoundaries covers 100ns to 10ms: single tree operations,
// including the occasional arena growth copy.
var durationBucketBoundaries = []float64{1e-7, 2.5e-7, 5e-7, 1e-6, 2.5e-6, 5e-6, 1e-5, 5e-5, 1e-4, 1e-3, 1e-2}

// StatsSource reports arena occupancy for the observable gauges.
// *rbtree.RBTree satisfies it.
type StatsSource interface {
	Stats() arena.Stats
}

// TreeMetrics holds the OTel instruments for tree operations. It implements
// workload.Recorder.
type TreeMetrics struct {
	opsTotal     metric.Int64Counter
	opDuration   metric.Float64Histogram
	registration metric.Registration
}

var _ workload.Recorder = (*TreeMetrics)(nil)

// NewTreeMetrics creates tree metric instruments from the given meter. When
// source is non-nil its arena stats are exported as observable gauges.
func NewTreeMetrics(mt metric.Meter, source StatsSource) (*TreeMetrics, error) {
	opsTotal, err := mt.Int64Counter(metricOpsTotal,
		metric.WithDescription("Total number of tree operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpsTotal, err)
	}

	opDuration, err := mt.Float64Histogram(metricOpDuration,
		metric.WithDescription("Tree operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpDuration, err)
	}

	tm := &TreeMetrics{
		opsTotal:   opsTotal,
		opDuration: opDuration,
	}

	if source == nil {
		return tm, nil
	}

	tm.registration, err = registerArenaGauges(mt, source)
	if err != nil {
		return nil, err
	}

	return tm, nil
}

func registerArenaGauges(mt metric.Meter, source StatsSource) (metric.Registration, error) {
	records, err := mt.Int64ObservableGauge(metricArenaRecords,
		metric.WithDescription("Live records in the arena"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricArenaRecords, err)
	}

	capacity, err := mt.Int64ObservableGauge(metricArenaCapacity,
		metric.WithDescription("Records the arena holds before growing"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricArenaCapacity, err)
	}

	free, err := mt.Int64ObservableGauge(metricArenaFree,
		metric.WithDescription("Length of the arena free list"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricArenaFree, err)
	}

	reserved, err := mt.Int64ObservableGauge(metricArenaBytes,
		metric.WithDescription("Bytes reserved by the arena buffer"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricArenaBytes, err)
	}

	registration, err := mt.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		stats := source.Stats()

		obs.ObserveInt64(records, int64(stats.Live))
		obs.ObserveInt64(capacity, int64(stats.Capacity))
		obs.ObserveInt64(free, int64(stats.Free))
		obs.ObserveInt64(reserved, int64(stats.ReservedBytes)) //nolint:gosec // bounded by the int32 handle space.

		return nil
	}, records, capacity, free, reserved)
	if err != nil {
		return nil, fmt.Errorf("register arena gauges: %w", err)
	}

	return registration, nil
}

// RecordOp records one tree operation with its outcome and duration.
func (tm *TreeMetrics) RecordOp(ctx context.Context, op workload.Op, hit bool, elapsed time.Duration) {
	result := resultHit
	if !hit {
		result = resultMiss
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOp, string(op)),
		attribute.String(attrResult, result),
	)

	tm.opsTotal.Add(ctx, 1, attrs)
	tm.opDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// Close unregisters the arena gauges.
func (tm *TreeMetrics) Close() error {
	if tm.registration == nil {
		return nil
	}

	err := tm.registration.Unregister()
	if err != nil {
		return fmt.Errorf("unregister arena gauges: %w", err)
	}

	return nil
}
