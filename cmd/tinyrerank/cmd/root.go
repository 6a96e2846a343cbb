// Package cmd provides the CLI commands for tinyrerank.
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tinyrerank/internal/config"
	rerrors "github.com/Aman-CERP/tinyrerank/internal/errors"
	"github.com/Aman-CERP/tinyrerank/internal/logging"
	"github.com/Aman-CERP/tinyrerank/internal/profiling"
	"github.com/Aman-CERP/tinyrerank/pkg/version"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitError       = 1
	ExitEmptyCorpus = 2
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	root           string
	configPath     string
	embedder       string
	retrieverModel string
	scorer         string
	rerankerModel  string
	columns        []string
	batchSize      int
	maxLength      int
	debug          bool
	profile        profiling.Options

	stderr         io.Writer
	cfg            *config.Config
	profiler       *profiling.Session
	loggingCleanup func()
}

// NewRootCmd creates the root command for the tinyrerank CLI.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *globalOptions) {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "tinyrerank",
		Short: "Two-stage retrieve-and-rerank search over a markdown directory",
		Long: `tinyrerank searches a directory of markdown documents in two stages:
exact dense-vector retrieval of a candidate set, then reranking of every
candidate with a pairwise relevance scorer.

Examples:
  tinyrerank --root ./docs search --query "rotate api keys"
  tinyrerank --root ./docs eval --qrels judgments.yaml
  tinyrerank --root ./docs --scorer http sweep --query "backups"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("tinyrerank version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.root, "root", "", "Directory of markdown documents (required for search, eval, sweep)")
	pf.StringVar(&g.configPath, "config", "", "Config file (default: <root>/.tinyrerank.yaml)")
	pf.StringVar(&g.embedder, "embedder", "static", "Embedding provider: static, ollama, openai")
	pf.StringVar(&g.retrieverModel, "retriever-model", "", "Embedding model name (provider default if empty)")
	pf.StringVar(&g.scorer, "scorer", "static", "Relevance scorer: static, http")
	pf.StringVar(&g.rerankerModel, "reranker-model", "", "Cross-encoder model name (server default if empty)")
	pf.StringSliceVar(&g.columns, "columns-to-rerank", []string{"title", "summary", "body"}, "Record fields shown to the reranker, in order")
	pf.IntVar(&g.batchSize, "batch-size", 16, "Pairs per scorer request")
	pf.IntVar(&g.maxLength, "max-length", 512, "Maximum words per reranked text")
	pf.BoolVar(&g.debug, "debug", false, "Enable debug logging to ~/.tinyrerank/logs/")
	pf.StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	pf.StringVar(&g.profile.Heap, "profile-mem", "", "Write memory profile to file")
	pf.StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		g.stderr = cmd.ErrOrStderr()
		return g.start()
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return g.stop()
	}

	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newEvalCmd(g))
	cmd.AddCommand(newSweepCmd(g))
	cmd.AddCommand(newStatsCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd, g
}

// start installs logging and starts profiling if requested.
func (g *globalOptions) start() error {
	cfg := logging.DefaultConfig()
	cfg.Stderr = g.stderr
	if g.debug {
		cfg = logging.DebugConfig()
		cfg.Stderr = g.stderr
	}
	if err := g.setupLogging(cfg); err != nil {
		return err
	}
	if g.debug {
		slog.Info("debug_logging_enabled", slog.String("log_file", cfg.FilePath), slog.String("version", version.Version))
	}

	if g.profile.Enabled() {
		p, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.profiler = p
	}
	return nil
}

// stop flushes profiles and closes the log file.
func (g *globalOptions) stop() error {
	var err error
	if g.profiler != nil {
		err = g.profiler.Stop()
		g.profiler = nil
	}
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
	return err
}

func (g *globalOptions) setupLogging(cfg logging.Config) error {
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if g.loggingCleanup != nil {
		g.loggingCleanup()
	}
	g.loggingCleanup = cleanup
	return nil
}

// config loads the layered configuration once and applies explicitly set
// flags on top.
func (g *globalOptions) config(cmd *cobra.Command) (*config.Config, error) {
	if g.cfg != nil {
		return g.cfg, nil
	}

	cfg, err := config.Load(g.root, g.configPath)
	if err != nil {
		return nil, err
	}

	if flagChanged(cmd, "embedder") {
		cfg.Embedder.Provider = g.embedder
	}
	if flagChanged(cmd, "retriever-model") {
		cfg.Embedder.Model = g.retrieverModel
	}
	if flagChanged(cmd, "scorer") {
		cfg.Scorer.Provider = g.scorer
	}
	if flagChanged(cmd, "reranker-model") {
		cfg.Scorer.Model = g.rerankerModel
	}
	if flagChanged(cmd, "columns-to-rerank") {
		cfg.Search.ColumnsToRerank = g.columns
	}
	if flagChanged(cmd, "batch-size") {
		cfg.Scorer.BatchSize = g.batchSize
	}
	if flagChanged(cmd, "max-length") {
		cfg.Scorer.MaxLength = g.maxLength
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// --debug already routes everything to the log file.
	if !g.debug && (cfg.Logging.File || cfg.Logging.Level != "warn") {
		lc := logging.DefaultConfig()
		lc.Level = cfg.Logging.Level
		lc.Stderr = g.stderr
		if cfg.Logging.File {
			lc.FilePath = logging.DefaultLogPath()
		}
		if err := g.setupLogging(lc); err != nil {
			return nil, err
		}
	}

	slog.Debug("config_loaded", slog.Any("sources", cfg.Sources))
	g.cfg = cfg
	return cfg, nil
}

func flagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, g := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when a command fails.
	if stopErr := g.stop(); err == nil {
		err = stopErr
	}
	if err == nil {
		return ExitOK
	}
	printError(stderr, err)
	return ExitCode(err)
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, rerrors.ErrEmptyCorpus):
		return ExitEmptyCorpus
	default:
		return ExitError
	}
}

func printError(w io.Writer, err error) {
	var re *rerrors.RankError
	switch {
	case stderrors.Is(err, rerrors.ErrEmptyCorpus) && stderrors.As(err, &re):
		_, _ = fmt.Fprintln(w, re.Message)
	case stderrors.As(err, &re):
		_, _ = fmt.Fprint(w, rerrors.FormatForCLI(err))
	default:
		_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	}
}
