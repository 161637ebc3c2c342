// Package watch implements the change-notification strategies. Both count
// "write completed" events for entries of a single directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/saworbit/dirbench/pkg/config"
	"github.com/saworbit/dirbench/pkg/observe"
)

// ErrUnsupported is returned when the platform has no inotify.
var ErrUnsupported = errors.New("inotify watching is only supported on Linux")

// Options tune the watch strategies.
type Options struct {
	// BufferSize is the read buffer of the blocking watch, in bytes.
	BufferSize int
	// StreamBuffer is the event queue length of the cooperative watch.
	StreamBuffer int
	// Backend picks the cooperative subscription: config.BackendNotify or config.BackendFSNotify.
	Backend string
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.BufferSize < config.MinInotifyBufferSize {
		o.BufferSize = config.DefaultConfig().InotifyBufferSize
	}
	if o.StreamBuffer <= 0 {
		o.StreamBuffer = config.DefaultConfig().StreamBufferSize
	}
	if o.Backend == "" {
		o.Backend = config.BackendNotify
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	o.Logger = o.Logger.Named("watch")
	return o
}

// Inotify subscribes to close-after-write events on dir and reads them with
// blocking calls until target named events have been decoded.
func Inotify(ctx context.Context, dir string, target int, opts Options) (int, error) {
	opts = opts.withDefaults()

	src, err := NewInotifySource(dir, opts.BufferSize)
	if err != nil {
		return 0, err
	}
	src.SetLogger(opts.Logger)
	return observe.Count(ctx, src, target, nil)
}

// InotifyAsync subscribes to dir through the configured backend and consumes
// the events as a stream on a dedicated loop goroutine.
func InotifyAsync(ctx context.Context, dir string, target int, opts Options) (int, error) {
	opts = opts.withDefaults()

	gen, err := subscribe(dir, opts)
	if err != nil {
		return 0, err
	}
	return observe.Count(ctx, observe.NewPump(ctx, gen), target, nil)
}

func subscribe(dir string, opts Options) (observe.Generator, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	// Backends report resolved paths.
	if resolved, err := filepath.EvalSymlinks(absDir); err == nil {
		absDir = resolved
	}

	switch opts.Backend {
	case config.BackendNotify:
		return subscribeNotify(absDir, opts)
	case config.BackendFSNotify:
		return subscribeFSNotify(absDir, opts)
	default:
		return nil, fmt.Errorf("unknown watch backend %q", opts.Backend)
	}
}

// observation maps an event path to an entry of dir. Events about dir
// itself, or anything outside it, carry no name.
func observation(dir, path string) observe.Observation {
	path = filepath.Clean(path)
	if filepath.Dir(path) != dir {
		return observe.Observation{Path: path}
	}
	return observe.Observation{Name: filepath.Base(path), Path: path}
}
