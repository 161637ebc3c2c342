// Package bench runs the producer and times each observation strategy against it.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saworbit/dirbench/internal/metrics"
	"github.com/saworbit/dirbench/pkg/config"
	"github.com/saworbit/dirbench/pkg/enumerate"
	"github.com/saworbit/dirbench/pkg/producer"
	"github.com/saworbit/dirbench/pkg/watch"
)

// ErrDirExists is returned by Prepare when the working directory is already present.
var ErrDirExists = errors.New("working directory already exists")

// StrategyFunc observes dir until target observations have been counted.
type StrategyFunc func(ctx context.Context, dir string, target int) (int, error)

// Strategy is a named, timed observation strategy.
type Strategy struct {
	Name string
	Run  StrategyFunc
}

// Result is the outcome of one timed strategy.
type Result struct {
	Name     string
	Duration time.Duration
	Observed int
}

// Summary is the outcome of a whole benchmark run.
type Summary struct {
	Started      time.Time
	Dir          string
	Target       int
	FilesCreated int64
	Results      []Result
}

// Prepare creates dir and its parents. It fails with ErrDirExists, creating
// nothing, when dir is already present.
func Prepare(dir string) error {
	if _, err := os.Lstat(dir); err == nil {
		return fmt.Errorf("%w: %s", ErrDirExists, dir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", dir, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create working dir: %w", err)
	}
	return nil
}

// Cleanup removes dir and everything in it.
func Cleanup(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove working dir: %w", err)
	}
	return nil
}

// DefaultStrategies returns the five strategies in reporting order.
func DefaultStrategies(cfg *config.Config, logger *zap.Logger) []Strategy {
	enumOpts := enumerate.Options{Batch: cfg.ListBatch, Logger: logger}
	watchOpts := watch.Options{
		BufferSize:   cfg.InotifyBufferSize,
		StreamBuffer: cfg.StreamBufferSize,
		Backend:      cfg.WatchBackend,
		Logger:       logger,
	}

	return []Strategy{
		{Name: "read_dir", Run: func(ctx context.Context, dir string, target int) (int, error) {
			return enumerate.ReadDir(ctx, dir, target, enumOpts)
		}},
		{Name: "read_dir_sorted", Run: func(ctx context.Context, dir string, target int) (int, error) {
			_, n, err := enumerate.ReadDirSorted(ctx, dir, target, enumOpts)
			return n, err
		}},
		{Name: "readdir async", Run: func(ctx context.Context, dir string, target int) (int, error) {
			return enumerate.ReadDirAsync(ctx, dir, target, enumOpts)
		}},
		{Name: "inotify", Run: func(ctx context.Context, dir string, target int) (int, error) {
			return watch.Inotify(ctx, dir, target, watchOpts)
		}},
		{Name: "inotify async", Run: func(ctx context.Context, dir string, target int) (int, error) {
			return watch.InotifyAsync(ctx, dir, target, watchOpts)
		}},
	}
}

// Driver sequences the benchmark: producer first, then each strategy in turn.
type Driver struct {
	Dir        string
	Config     *config.Config
	Strategies []Strategy
	Logger     *zap.Logger

	// Out receives one result line per strategy.
	Out io.Writer

	// Fatal is called if the producer fails while strategies are running.
	// It is expected not to return; the default logs and exits.
	Fatal func(error)
}

func (d *Driver) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger.Named("bench")
}

// Run starts the producer, waits for the warm-up, times every strategy and
// finally stops and joins the producer. It does not create or remove Dir.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	out := d.Out
	if out == nil {
		out = io.Discard
	}
	logger := d.logger()
	fatal := d.Fatal
	if fatal == nil {
		fatal = func(err error) { logger.Fatal("producer failed", zap.Error(err)) }
	}

	summary := &Summary{Started: time.Now(), Dir: d.Dir, Target: cfg.TargetCount}

	p := producer.New(d.Dir, cfg, d.Logger)
	stop := producer.NewSignal()

	var g errgroup.Group
	g.Go(func() error {
		if err := p.Run(stop); err != nil {
			fatal(err)
			return err
		}
		return nil
	})

	join := func() error {
		stop.Send()
		err := g.Wait()
		summary.FilesCreated = p.Created()
		metrics.SetFilesCreated(summary.FilesCreated)
		return err
	}

	logger.Info("producer started", zap.String("dir", d.Dir), zap.Duration("warmup", cfg.Warmup))
	select {
	case <-ctx.Done():
		_ = join()
		return summary, ctx.Err()
	case <-time.After(cfg.Warmup):
	}

	for _, s := range d.Strategies {
		logger.Debug("strategy starting", zap.String("strategy", s.Name), zap.Int64("files", p.Created()))

		start := time.Now()
		n, err := s.Run(ctx, d.Dir, cfg.TargetCount)
		elapsed := time.Since(start)
		if err != nil {
			_ = join()
			return summary, fmt.Errorf("%s: %w", s.Name, err)
		}

		metrics.ObserveStrategy(s.Name, elapsed, n)
		summary.Results = append(summary.Results, Result{Name: s.Name, Duration: elapsed, Observed: n})
		fmt.Fprintf(out, "%s duration: %s\n", s.Name, FormatDuration(elapsed))
	}

	if err := join(); err != nil {
		return summary, fmt.Errorf("producer: %w", err)
	}
	logger.Info("producer stopped", zap.Int64("files", summary.FilesCreated))

	return summary, nil
}

// FormatDuration renders d as seconds with a zero-padded millisecond fraction, e.g. "3.042s".
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%d.%03ds", ms/1000, ms%1000)
}
