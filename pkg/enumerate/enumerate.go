// Package enumerate implements the directory listing strategies.
package enumerate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/saworbit/dirbench/pkg/observe"
)

// Options tune the listing strategies.
type Options struct {
	// Batch is the number of entries requested per directory read; 0 reads whole listings.
	Batch int
	// Logger receives per-entry metadata failures.
	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger.Named("enumerate")
}

// ReadDir lists dir repeatedly until target entries have been seen, counting
// every entry of every listing.
func ReadDir(ctx context.Context, dir string, target int, opts Options) (int, error) {
	return observe.Count(ctx, NewDirSource(dir, opts.Batch), target, nil)
}

// ReadDirSorted lists dir like ReadDir and files every entry into an Index by
// modification time. Entries whose metadata cannot be read are logged and do
// not count.
func ReadDirSorted(ctx context.Context, dir string, target int, opts Options) (*Index, int, error) {
	logger := opts.logger()
	index := NewIndex()

	accept := func(obs observe.Observation) bool {
		mtime, err := modifiedSinceEpoch(obs.Path)
		if err != nil {
			logger.Warn("skipping entry", zap.String("path", obs.Path), zap.Error(err))
			return false
		}
		index.Insert(mtime, obs.Path)
		return true
	}

	n, err := observe.Count(ctx, NewDirSource(dir, opts.Batch), target, accept)
	logger.Debug("sorted listing done",
		zap.Int("entries", index.Len()),
		zap.Int("timestamps", index.Timestamps()))
	return index, n, err
}

// ReadDirAsync counts entries like ReadDir, but the listing runs on a
// dedicated loop goroutine that hands entries over one at a time.
func ReadDirAsync(ctx context.Context, dir string, target int, opts Options) (int, error) {
	n, passes, err := readDirAsync(ctx, dir, target, opts.Batch)
	opts.logger().Debug("async listing done", zap.Int("passes", passes))
	return n, err
}

// readDirAsync also reports how many listings the consumer drew entries from.
func readDirAsync(ctx context.Context, dir string, target, batch int) (int, int, error) {
	var passes int
	pump := observe.NewPump(ctx, listLoop(dir, batch, &passes))
	n, err := observe.Count(ctx, pump, target, nil)
	// Count closed the pump, so the loop goroutine has exited.
	return n, passes, err
}

// listLoop re-lists dir forever, yielding each entry. passes is incremented
// once per listing whose first entry was taken by the consumer.
func listLoop(dir string, batch int, passes *int) observe.Generator {
	if batch <= 0 {
		batch = -1
	}
	return func(ctx context.Context, yield observe.Yield) error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := listOnce(dir, batch, yield, passes); err != nil {
				return err
			}
		}
	}
}

func listOnce(dir string, batch int, yield observe.Yield, passes *int) error {
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	defer f.Close()

	first := true
	for {
		entries, err := f.ReadDir(batch)
		for _, entry := range entries {
			if err := yield(observe.Observation{Name: entry.Name(), Path: filepath.Join(dir, entry.Name())}); err != nil {
				return err
			}
			if first {
				first = false
				*passes++
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("list %s: %w", dir, err)
		case batch < 0:
			return nil
		}
	}
}

var (
	errBeforeEpoch = errors.New("modification time precedes the Unix epoch")
	errAfterMax    = errors.New("modification time exceeds the indexable range")
)

// latestIndexable is the last instant whose nanoseconds since the epoch fit in an int64.
var latestIndexable = time.Unix(0, math.MaxInt64)

func modifiedSinceEpoch(path string) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return sinceEpoch(info.ModTime())
}

func sinceEpoch(mtime time.Time) (time.Duration, error) {
	switch {
	case mtime.Before(time.Unix(0, 0)):
		return 0, fmt.Errorf("%w: %s", errBeforeEpoch, mtime)
	case mtime.After(latestIndexable):
		return 0, fmt.Errorf("%w: %s", errAfterMax, mtime)
	}
	return time.Duration(mtime.UnixNano()), nil
}
