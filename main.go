package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saworbit/dirbench/internal/metrics"
	"github.com/saworbit/dirbench/internal/platform"
	"github.com/saworbit/dirbench/internal/version"
	"github.com/saworbit/dirbench/pkg/bench"
	"github.com/saworbit/dirbench/pkg/config"
	"github.com/saworbit/dirbench/pkg/results"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	var opts runOptions

	root := &cobra.Command{
		Use:   "dirbench <dir>",
		Short: "Directory observation benchmark",
		Long: "Creates <dir>, which must not exist, keeps writing files into it and reports how long " +
			"each listing and watch strategy takes to observe the target number of entries. " +
			"The directory is removed afterwards.",
		Version:       version.Version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, args[0], opts)
		},
	}
	addRunFlags(root, &opts)

	root.AddCommand(newRunCmd(), newHistoryCmd())
	return root
}

type runOptions struct {
	configPath   string
	target       int
	warmup       time.Duration
	watchBackend string
	stateDir     string
	metricsAddr  string
	verbose      bool
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().IntVar(&opts.target, "target", 0, "Observations every strategy must reach")
	cmd.Flags().DurationVar(&opts.warmup, "warmup", 0, "How long the producer runs before timing starts")
	cmd.Flags().StringVar(&opts.watchBackend, "watch-backend", "", "Cooperative watch backend (notify or fsnotify)")
	cmd.Flags().StringVar(&opts.stateDir, "state-dir", "", "Directory where run history is stored")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
}

// newRunCmd is the explicit form of the root command.
func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <dir>",
		Short: "Same as dirbench <dir>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, args[0], opts)
		},
	}
	addRunFlags(cmd, &opts)
	return cmd
}

func runCommand(cmd *cobra.Command, dir string, opts runOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runBench(ctx, platform.LongPathname(dir), cfg, logger, cmd.OutOrStdout())
}

func newHistoryCmd() *cobra.Command {
	var stateDir string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previously recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateDir == "" {
				stateDir = config.LoadFromEnv().StateDir
			}
			if stateDir == "" {
				return fmt.Errorf("state-dir is required")
			}
			return runHistory(stateDir, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "Directory where run history is stored")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of runs to show (0 shows all)")
	return cmd
}

func loadConfig(cmd *cobra.Command, opts runOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.configPath); err != nil {
			return nil, err
		}
	}
	config.ApplyEnv(cfg)

	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.TargetCount = opts.target
	}
	if flags.Changed("warmup") {
		cfg.Warmup = opts.warmup
	}
	if flags.Changed("watch-backend") {
		cfg.WatchBackend = opts.watchBackend
	}
	if flags.Changed("state-dir") {
		cfg.StateDir = opts.stateDir
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func runBench(ctx context.Context, dir string, cfg *config.Config, logger *zap.Logger, out io.Writer) (err error) {
	if err := bench.Prepare(dir); err != nil {
		return err
	}
	defer func() {
		if cerr := bench.Cleanup(dir); cerr != nil {
			logger.Warn("cleanup failed", zap.String("dir", dir), zap.Error(cerr))
			if err == nil {
				err = cerr
			}
		}
	}()

	metrics.SetBuildInfo(version.Version, cfg.WatchBackend)
	defer func() { metrics.ObserveRun(err) }()

	if cfg.MetricsAddr != "" {
		mctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(mctx, cfg.MetricsAddr, logger); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	driver := &bench.Driver{
		Dir:        dir,
		Config:     cfg,
		Strategies: bench.DefaultStrategies(cfg, logger),
		Logger:     logger,
		Out:        out,
	}

	summary, err := driver.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.StateDir != "" {
		if err := saveRun(cfg.StateDir, recordFromSummary(summary, cfg.WatchBackend)); err != nil {
			logger.Warn("failed to record run history", zap.String("state_dir", cfg.StateDir), zap.Error(err))
		}
	}

	logger.Info("benchmark complete",
		zap.String("files_created", humanize.Comma(summary.FilesCreated)),
		zap.Duration("elapsed", time.Since(summary.Started)))
	return nil
}

func recordFromSummary(s *bench.Summary, backend string) results.Record {
	rec := results.Record{
		Started:      s.Started.UnixNano(),
		Dir:          s.Dir,
		Target:       s.Target,
		FilesCreated: s.FilesCreated,
		Backend:      backend,
	}
	for _, r := range s.Results {
		rec.Strategies = append(rec.Strategies, results.StrategyRecord{
			Name:       r.Name,
			DurationNS: r.Duration.Nanoseconds(),
			Observed:   r.Observed,
		})
	}
	return rec
}

func saveRun(stateDir string, rec results.Record) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	store, err := results.Open(stateDir, false)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Save(rec)
}

func runHistory(stateDir string, limit int, out io.Writer) error {
	if _, err := os.Stat(stateDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no history in %s", stateDir)
		}
		return err
	}

	store, err := results.Open(stateDir, true)
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.List(limit)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		started := rec.StartedAt()
		fmt.Fprintf(out, "%s (%s) dir=%s target=%s files=%s backend=%s\n",
			started.Format(time.RFC3339), humanize.Time(started), rec.Dir,
			humanize.Comma(int64(rec.Target)), humanize.Comma(rec.FilesCreated), rec.Backend)
		for _, s := range rec.Strategies {
			fmt.Fprintf(out, "  %s duration: %s\n", s.Name, bench.FormatDuration(s.Duration()))
		}
	}
	return nil
}
