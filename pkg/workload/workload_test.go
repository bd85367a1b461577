package workload_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
	"github.com/Sumatoshi-tech/rbarena/pkg/workload"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[workload.Op]int
	misses int
	hook   func(ops int)
}

func (c *countingRecorder) RecordOp(_ context.Context, op workload.Op, hit bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts == nil {
		c.counts = map[workload.Op]int{}
	}

	c.counts[op]++

	if !hit {
		c.misses++
	}

	if c.hook != nil {
		c.hook(c.counts[workload.OpInsert] + c.counts[workload.OpDelete])
	}
}

func smallConfig() workload.Config {
	return workload.Config{
		Seed:        42,
		Keys:        50,
		KeyMin:      -500,
		KeyMax:      500,
		DeleteEvery: 3,
		VerifyEvery: 1,
		SampleEvery: 10,
	}
}

func TestRun_InsertThenDeleteEveryThird(t *testing.T) {
	t.Parallel()

	tree := rbtree.New()
	rec := &countingRecorder{}

	result, err := workload.Run(context.Background(), tree, smallConfig(), rec)
	require.NoError(t, err)

	assert.Equal(t, 50, result.Inserted)
	assert.Equal(t, 16, result.Deleted)
	assert.Equal(t, 34, tree.Len())
	assert.Equal(t, 67, result.Checks)
	assert.Equal(t, tree.Height(), result.Height)
	assert.Equal(t, 34, result.Stats.Live)

	assert.Equal(t, 50, rec.counts[workload.OpInsert])
	assert.Equal(t, 16, rec.counts[workload.OpDelete])
	assert.Zero(t, rec.misses)

	require.Len(t, result.Series, 6)
	assert.Equal(t, workload.Point{Op: 10, Size: 10, Height: result.Series[0].Height}, result.Series[0])
	assert.Equal(t, 60, result.Series[5].Op)
	assert.Equal(t, 40, result.Series[5].Size)
}

func TestRun_Reproducible(t *testing.T) {
	t.Parallel()

	first := rbtree.New()
	second := rbtree.New()

	_, err := workload.Run(context.Background(), first, smallConfig(), nil)
	require.NoError(t, err)

	_, err = workload.Run(context.Background(), second, smallConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, first.Snapshot().InOrder(), second.Snapshot().InOrder())
}

func TestRun_KeepsExistingKeys(t *testing.T) {
	t.Parallel()

	tree := rbtree.New()
	tree.Insert(100000)

	cfg := smallConfig()
	cfg.DeleteEvery = 0

	_, err := workload.Run(context.Background(), tree, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 51, tree.Len())
	assert.True(t, tree.Contains(100000))
}

func TestRun_DetectsForeignMutation(t *testing.T) {
	t.Parallel()

	tree := rbtree.New()
	rec := &countingRecorder{}
	rec.hook = func(ops int) {
		if ops == 20 {
			tree.Insert(9999)
		}
	}

	cfg := smallConfig()
	cfg.VerifyEvery = 0

	_, err := workload.Run(context.Background(), tree, cfg, rec)
	require.ErrorIs(t, err, workload.ErrMismatch)
	assert.Contains(t, err.Error(), "+ 9999")
}

func TestRun_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := workload.Run(ctx, rbtree.New(), smallConfig(), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.Inserted)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, workload.DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*workload.Config)
	}{
		{"no_keys", func(cfg *workload.Config) { cfg.Keys = 0 }},
		{"empty_range", func(cfg *workload.Config) { cfg.KeyMin, cfg.KeyMax = 5, 4 }},
		{"range_too_small", func(cfg *workload.Config) { cfg.KeyMin, cfg.KeyMax = 0, 9 }},
		{"negative_interval", func(cfg *workload.Config) { cfg.VerifyEvery = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := smallConfig()
			tt.mutate(&cfg)

			require.ErrorIs(t, cfg.Validate(), workload.ErrInvalidConfig)

			_, err := workload.Run(context.Background(), rbtree.New(), cfg, nil)
			require.ErrorIs(t, err, workload.ErrInvalidConfig)
		})
	}
}

func TestRun_FullInt32Range(t *testing.T) {
	t.Parallel()

	cfg := smallConfig()
	cfg.KeyMin, cfg.KeyMax = -2147483648, 2147483647
	cfg.Keys = 500

	_, err := workload.Run(context.Background(), rbtree.New(), cfg, nil)
	require.NoError(t, err)
}
