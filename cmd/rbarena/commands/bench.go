package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/rbarena/pkg/config"
	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
	"github.com/Sumatoshi-tech/rbarena/pkg/report"
	"github.com/Sumatoshi-tech/rbarena/pkg/workload"
)

const (
	metricsPath       = "/metrics"
	readHeaderTimeout = 5 * time.Second
	spanBench         = "rbarena.bench"
)

// ErrNoMetricsHandler is returned when a metrics address is set but the
// Prometheus exporter is not available.
var ErrNoMetricsHandler = errors.New("prometheus exporter is not enabled")

type benchOptions struct {
	global      *globalOptions
	seed        int64
	keys        int
	deleteEvery int
	verifyEvery int
	sampleEvery int
	chart       string
	metricsAddr string
	linger      time.Duration
	hibernate   bool
}

func newBenchCommand(global *globalOptions) *cobra.Command {
	opts := &benchOptions{global: global}

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a seeded workload with verification and metrics",
		Long: `Insert a seeded stream of distinct keys, delete every n-th one, verify the
invariants periodically and compare the final contents with a sorted oracle.

Flags override the bench section of the config file.

Examples:
  rbarena bench --keys 100000 --chart height.html
  rbarena bench --metrics-addr :9464 --linger 30s`,
		Args: cobra.NoArgs,
		RunE: opts.run,
	}

	defaults := workload.DefaultConfig()

	cmd.Flags().Int64Var(&opts.seed, "seed", defaults.Seed, "random seed")
	cmd.Flags().IntVar(&opts.keys, "keys", defaults.Keys, "number of distinct keys to insert")
	cmd.Flags().IntVar(&opts.deleteEvery, "delete-every", defaults.DeleteEvery, "delete every n-th inserted key (0 = none)")
	cmd.Flags().IntVar(&opts.verifyEvery, "verify-every", defaults.VerifyEvery, "check invariants every n operations (0 = at the end)")
	cmd.Flags().IntVar(&opts.sampleEvery, "sample-every", defaults.SampleEvery, "sample the height every n operations (0 = never)")
	cmd.Flags().StringVar(&opts.chart, "chart", "", "write an HTML height chart to this path")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().DurationVar(&opts.linger, "linger", 0, "keep the metrics server up this long after the run")
	cmd.Flags().BoolVar(&opts.hibernate, "hibernate", false, "hibernate and boot the arena after the run and report its size")

	return cmd
}

// tune applies explicitly set flags over the loaded config.
func (bo *benchOptions) tune(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()

		if flags.Changed("seed") {
			cfg.Bench.Seed = bo.seed
		}

		if flags.Changed("keys") {
			cfg.Bench.Keys = bo.keys
		}

		if flags.Changed("delete-every") {
			cfg.Bench.DeleteEvery = bo.deleteEvery
		}

		if flags.Changed("verify-every") {
			cfg.Bench.VerifyEvery = bo.verifyEvery
		}

		if flags.Changed("sample-every") {
			cfg.Bench.SampleEvery = bo.sampleEvery
		}

		if flags.Changed("metrics-addr") {
			cfg.Observability.MetricsAddr = bo.metricsAddr
		}
	}
}

func (bo *benchOptions) run(cmd *cobra.Command, _ []string) error {
	sess, err := bo.global.openSession(cmd, observability.ModeBench, bo.tune(cmd))
	if err != nil {
		return err
	}
	defer sess.close()

	wcfg := sess.cfg.Bench.Workload()

	err = wcfg.Validate()
	if err != nil {
		return err
	}

	tree := sess.newTree()

	metrics, err := observability.NewTreeMetrics(sess.providers.Meter, tree)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := metrics.Close()
		if closeErr != nil {
			sess.logger().Warn("close tree metrics", "error", closeErr)
		}
	}()

	stopServer, err := bo.serveMetrics(sess)
	if err != nil {
		return err
	}
	defer stopServer()

	res, err := bo.execute(cmd.Context(), sess, tree, wcfg, metrics)
	if err != nil {
		return err
	}

	err = bo.writeReport(sess, tree, res)
	if err != nil {
		return err
	}

	if bo.linger > 0 && sess.cfg.Observability.MetricsAddr != "" {
		sess.logger().Info("lingering for scrapes", "duration", bo.linger)

		select {
		case <-time.After(bo.linger):
		case <-cmd.Context().Done():
		}
	}

	return nil
}

func (bo *benchOptions) execute(
	ctx context.Context,
	sess *session,
	tree *rbtree.RBTree,
	wcfg workload.Config,
	rec workload.Recorder,
) (workload.Result, error) {
	ctx, span := sess.providers.Tracer.Start(ctx, spanBench, trace.WithAttributes(
		attribute.Int64("workload.seed", wcfg.Seed),
		attribute.Int("workload.keys", wcfg.Keys),
		attribute.Int("workload.delete_every", wcfg.DeleteEvery),
	))
	defer span.End()

	sess.logger().InfoContext(ctx, "workload started", "workload.keys", wcfg.Keys, "workload.seed", wcfg.Seed)

	res, err := workload.Run(ctx, tree, wcfg, rec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "workload failed")

		return res, violation(err)
	}

	span.SetAttributes(
		attribute.Int("tree.nodes", tree.Len()),
		attribute.Int("tree.height", res.Height),
		attribute.Int("workload.checks", res.Checks),
	)

	sess.logger().InfoContext(ctx, "workload finished",
		"tree.nodes", tree.Len(), "tree.height", res.Height, "duration", res.Elapsed)

	return res, nil
}

func (bo *benchOptions) writeReport(sess *session, tree *rbtree.RBTree, res workload.Result) error {
	summary := report.Summarize(tree)

	if bo.hibernate {
		err := hibernateCycle(sess, tree, &summary)
		if err != nil {
			return err
		}
	}

	if bo.chart != "" {
		err := writeChart(bo.chart, res.Series)
		if err != nil {
			return err
		}

		sess.logger().Info("height chart written", "path", bo.chart, "samples", len(res.Series))
	}

	if sess.quiet {
		return nil
	}

	err := report.WriteResult(sess.out, res)
	if err != nil {
		return err
	}

	return report.WriteSummary(sess.out, summary)
}

// hibernateCycle compresses the arena, records its hibernated stats into
// summary, boots it again and re-verifies the tree.
func hibernateCycle(sess *session, tree *rbtree.RBTree, summary *report.Summary) error {
	store := tree.Arena()
	threshold := store.HibernationThreshold
	store.HibernationThreshold = 0

	store.Hibernate()
	summary.Arena = tree.Stats()

	store.HibernationThreshold = threshold

	err := store.Boot()
	if err != nil {
		return fmt.Errorf("boot arena: %w", err)
	}

	sess.notef(color.FgCyan, "hibernated %s into %s",
		humanize.IBytes(summary.Arena.ReservedBytes),
		humanize.IBytes(uint64(summary.Arena.CompressedBytes))) //nolint:gosec // length is never negative.

	return violation(tree.Check())
}

func writeChart(path string, series []workload.Point) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}

	defer func() {
		err = errors.Join(err, file.Close())
	}()

	return report.WriteHeightChart(file, series)
}

// metricsHandler serves the Prometheus endpoint with a span per request.
func metricsHandler(providers observability.Providers) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, providers.MetricsHandler)

	return observability.HTTPMiddleware(providers.Tracer, mux)
}

// serveMetrics starts the metrics server when an address is configured and
// returns a function that stops it.
func (bo *benchOptions) serveMetrics(sess *session) (func(), error) {
	addr := sess.cfg.Observability.MetricsAddr
	if addr == "" {
		return func() {}, nil
	}

	if sess.providers.MetricsHandler == nil {
		return nil, ErrNoMetricsHandler
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           metricsHandler(sess.providers),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			sess.logger().Error("metrics server failed", "error", serveErr)
		}
	}()

	sess.logger().Info("metrics server listening", "addr", listener.Addr().String(), "path", metricsPath)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()

		shutdownErr := srv.Shutdown(ctx)
		if shutdownErr != nil {
			sess.logger().Warn("metrics server shutdown failed", "error", shutdownErr)
		}
	}, nil
}
