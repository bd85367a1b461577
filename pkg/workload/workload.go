// Package workload drives a tree with a seeded stream of inserts and deletes
// and cross-checks it against a sorted-slice oracle.
package workload

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Sumatoshi-tech/rbarena/pkg/arena"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
)

var (
	// ErrInvalidConfig reports a Config that cannot be run.
	ErrInvalidConfig = errors.New("workload: invalid config")

	// ErrMismatch reports a tree whose contents differ from the oracle.
	ErrMismatch = errors.New("workload: tree contents differ from oracle")
)

// Op names a tree operation.
type Op string

// Operations issued by Run.
const (
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Recorder observes every operation issued by Run. hit is false only for a
// delete that found nothing.
type Recorder interface {
	RecordOp(ctx context.Context, op Op, hit bool, elapsed time.Duration)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

// RecordOp implements Recorder.
func (NopRecorder) RecordOp(context.Context, Op, bool, time.Duration) {}

// Config describes a workload.
type Config struct {
	// Seed makes the key stream reproducible.
	Seed int64
	// Keys is the number of distinct keys inserted.
	Keys int
	// KeyMin and KeyMax bound the generated keys, inclusive.
	KeyMin int32
	KeyMax int32
	// DeleteEvery deletes every n-th inserted key after all inserts. Zero
	// disables deletion.
	DeleteEvery int
	// VerifyEvery runs the invariant check every n operations. Zero checks
	// only once at the end.
	VerifyEvery int
	// SampleEvery records a size/height point every n operations. Zero
	// disables sampling.
	SampleEvery int
}

// Default workload settings.
const (
	DefaultKeys        = 10000
	DefaultKeyMin      = -1_000_000
	DefaultKeyMax      = 1_000_000
	DefaultDeleteEvery = 3
	DefaultVerifyEvery = 1000
	DefaultSampleEvery = 100
)

// DefaultConfig returns the settings used by the bench command.
func DefaultConfig() Config {
	return Config{
		Seed:        1,
		Keys:        DefaultKeys,
		KeyMin:      DefaultKeyMin,
		KeyMax:      DefaultKeyMax,
		DeleteEvery: DefaultDeleteEvery,
		VerifyEvery: DefaultVerifyEvery,
		SampleEvery: DefaultSampleEvery,
	}
}

// Validate checks that the config describes a runnable workload.
func (cfg Config) Validate() error {
	if cfg.Keys <= 0 {
		return fmt.Errorf("%w: keys must be positive, got %d", ErrInvalidConfig, cfg.Keys)
	}

	if cfg.KeyMin > cfg.KeyMax {
		return fmt.Errorf("%w: key range [%d, %d] is empty", ErrInvalidConfig, cfg.KeyMin, cfg.KeyMax)
	}

	if span := cfg.span(); span < int64(cfg.Keys) {
		return fmt.Errorf("%w: %d distinct keys do not fit in a range of %d", ErrInvalidConfig, cfg.Keys, span)
	}

	if cfg.DeleteEvery < 0 || cfg.VerifyEvery < 0 || cfg.SampleEvery < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidConfig)
	}

	return nil
}

func (cfg Config) span() int64 {
	return int64(cfg.KeyMax) - int64(cfg.KeyMin) + 1
}

// Point is one sample of the tree's shape.
type Point struct {
	Op     int `json:"op"     yaml:"op"`
	Size   int `json:"size"   yaml:"size"`
	Height int `json:"height" yaml:"height"`
}

// Result summarizes a finished workload.
type Result struct {
	Inserted int
	Deleted  int
	Checks   int
	Height   int
	Elapsed  time.Duration
	Series   []Point
	Stats    arena.Stats
}

// Run applies the workload described by cfg to tree. Keys already in the
// tree are carried into the oracle. The context is checked between
// operations.
//
// A failed invariant check is returned as is. A final content mismatch is
// returned as ErrMismatch with a key diff in the message.
func Run(ctx context.Context, tree *rbtree.RBTree, cfg Config, rec Recorder) (Result, error) {
	err := cfg.Validate()
	if err != nil {
		return Result{}, err
	}

	if rec == nil {
		rec = NopRecorder{}
	}

	run := &runner{
		tree:   tree,
		cfg:    cfg,
		rec:    rec,
		oracle: NewOracle(tree.Snapshot().InOrder()...),
	}

	start := time.Now()

	err = run.execute(ctx)
	run.result.Elapsed = time.Since(start)
	run.result.Height = tree.Height()
	run.result.Stats = tree.Stats()

	if err != nil {
		return run.result, err
	}

	err = run.finish()

	return run.result, err
}

type runner struct {
	tree   *rbtree.RBTree
	cfg    Config
	rec    Recorder
	oracle *Oracle
	ops    int
	result Result
}

func (r *runner) execute(ctx context.Context) error {
	keys := r.generate()

	for _, key := range keys {
		err := r.step(ctx, OpInsert, key)
		if err != nil {
			return err
		}
	}

	if r.cfg.DeleteEvery == 0 {
		return nil
	}

	for idx := r.cfg.DeleteEvery - 1; idx < len(keys); idx += r.cfg.DeleteEvery {
		err := r.step(ctx, OpDelete, keys[idx])
		if err != nil {
			return err
		}
	}

	return nil
}

// generate draws cfg.Keys distinct keys from the configured range.
func (r *runner) generate() []int32 {
	rng := rand.New(rand.NewSource(r.cfg.Seed)) //nolint:gosec // reproducible workload, not security.
	span := r.cfg.span()
	seen := make(map[int32]struct{}, r.cfg.Keys)
	keys := make([]int32, 0, r.cfg.Keys)

	for len(keys) < r.cfg.Keys {
		key := int32(int64(r.cfg.KeyMin) + rng.Int63n(span))
		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	return keys
}

func (r *runner) step(ctx context.Context, op Op, key int32) error {
	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("workload stopped after %d ops: %w", r.ops, err)
	}

	hit := true
	start := time.Now()

	switch op {
	case OpInsert:
		r.tree.Insert(key)
		r.oracle.Insert(key)
		r.result.Inserted++
	case OpDelete:
		hit = r.tree.Delete(key)
		if want := r.oracle.Delete(key); want != hit {
			return fmt.Errorf("%w: delete(%d) returned %t, oracle %t", ErrMismatch, key, hit, want)
		}

		if hit {
			r.result.Deleted++
		}
	}

	r.rec.RecordOp(ctx, op, hit, time.Since(start))
	r.ops++

	if r.cfg.VerifyEvery > 0 && r.ops%r.cfg.VerifyEvery == 0 {
		err = r.check()
		if err != nil {
			return err
		}
	}

	if r.cfg.SampleEvery > 0 && r.ops%r.cfg.SampleEvery == 0 {
		r.result.Series = append(r.result.Series, Point{Op: r.ops, Size: r.tree.Len(), Height: r.tree.Height()})
	}

	return nil
}

func (r *runner) check() error {
	r.result.Checks++

	err := r.tree.Check()
	if err != nil {
		return fmt.Errorf("invariant check after %d ops: %w", r.ops, err)
	}

	return nil
}

func (r *runner) finish() error {
	err := r.check()
	if err != nil {
		return err
	}

	got := r.tree.Snapshot().InOrder()

	if diff := DiffKeys(r.oracle.Keys(), got); diff != "" {
		return fmt.Errorf("%w (%d expected, %d found):\n%s", ErrMismatch, r.oracle.Len(), len(got), diff)
	}

	return nil
}
