// Package commands implements CLI command handlers for rbarena.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rbarena/pkg/config"
	"github.com/Sumatoshi-tech/rbarena/pkg/observability"
	"github.com/Sumatoshi-tech/rbarena/pkg/rbtree"
	"github.com/Sumatoshi-tech/rbarena/pkg/report"
	"github.com/Sumatoshi-tech/rbarena/pkg/version"
	"github.com/Sumatoshi-tech/rbarena/pkg/workload"
)

// Exit codes returned by ExitCode.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitViolation = 2
)

// ErrViolation reports a tree that breaks a red-black invariant or disagrees
// with the oracle.
var ErrViolation = errors.New("red-black invariant violated")

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrViolation), errors.Is(err, report.ErrSchema):
		return ExitViolation
	default:
		return ExitFailure
	}
}

// violation wraps err in ErrViolation when it reports a broken invariant or an
// oracle mismatch, and returns it unchanged otherwise.
func violation(err error) error {
	if err == nil {
		return nil
	}

	for _, target := range []error{
		rbtree.ErrOrder,
		rbtree.ErrRootColor,
		rbtree.ErrRedRed,
		rbtree.ErrBlackHeight,
		rbtree.ErrLinks,
		rbtree.ErrCount,
		workload.ErrMismatch,
	} {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", ErrViolation, err)
		}
	}

	return err
}

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	verbose    bool
	quiet      bool
	logJSON    bool
	noColor    bool
}

// NewRootCommand creates the rbarena command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "rbarena",
		Short: "Arena-backed red-black tree toolkit",
		Long: `rbarena drives a red-black tree whose nodes live in a single growable
byte arena addressed by int32 handles.

Commands:
  run       Apply insert/delete operations and print the tree
  show      Render a tree saved with run --save
  check     Validate a JSON snapshot against the schema and the invariants
  bench     Run a seeded workload with verification and metrics
  version   Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: rbarena.yaml in ., ./config, /etc/rbarena)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress output")
	flags.BoolVar(&opts.logJSON, "log-json", false, "log as JSON")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newShowCommand(opts),
		newCheckCommand(opts),
		newBenchCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

// session is the per-invocation state built from config and flags.
type session struct {
	cfg       *config.Config
	providers observability.Providers
	printer   *report.TreePrinter
	colorize  bool
	quiet     bool
	out       io.Writer
}

// openSession loads configuration and initializes observability. Callers must
// defer close.
func (g *globalOptions) openSession(cmd *cobra.Command, mode observability.AppMode, tune func(*config.Config)) (*session, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}

	if tune != nil {
		tune(cfg)
	}

	telemetry := cfg.Telemetry(version.Version, mode)
	telemetry.LogOutput = cmd.ErrOrStderr()

	switch {
	case g.verbose:
		telemetry.LogLevel = slog.LevelDebug
	case g.quiet:
		telemetry.LogLevel = slog.LevelError
	}

	if g.logJSON {
		telemetry.LogJSON = true
	}

	providers, err := observability.Init(telemetry)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	colorize := !g.noColor && !color.NoColor

	return &session{
		cfg:       cfg,
		providers: providers,
		printer:   report.NewTreePrinter(colorize),
		colorize:  colorize,
		quiet:     g.quiet,
		out:       cmd.OutOrStdout(),
	}, nil
}

func (s *session) close() {
	err := s.providers.Shutdown(context.Background())
	if err != nil {
		s.providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

func (s *session) logger() *slog.Logger {
	return s.providers.Logger
}

// newTree creates an empty tree sized by the arena section of the config.
func (s *session) newTree() *rbtree.RBTree {
	return rbtree.New(s.treeOptions()...)
}

func (s *session) treeOptions() []rbtree.Option {
	return []rbtree.Option{
		rbtree.WithLogger(s.logger()),
		rbtree.WithArenaOptions(s.cfg.Arena.Options()...),
	}
}

// notef prints an informational line unless --quiet is set.
func (s *session) notef(attr color.Attribute, format string, args ...any) {
	if s.quiet {
		return
	}

	note := color.New(attr)
	if !s.colorize {
		note.DisableColor()
	}

	note.Fprintf(s.out, format+"\n", args...)
}
