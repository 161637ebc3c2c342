package watch

import (
	"context"
	"errors"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/saworbit/dirbench/pkg/observe"
)

// subscribeFSNotify watches dir with fsnotify. fsnotify has no portable
// close-after-write event, so each Write op stands for one completed write;
// the producer writes every file exactly once.
func subscribeFSNotify(dir string, opts Options) (observe.Generator, error) {
	watcher, err := fsnotify.NewBufferedWatcher(uint(opts.StreamBuffer))
	if err != nil {
		return nil, fmt.Errorf("cannot create watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("cannot watch %s: %w", dir, err)
	}
	opts.Logger.Debug("subscribed", zap.String("dir", dir), zap.String("backend", "fsnotify"))

	return func(ctx context.Context, yield observe.Yield) error {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case evt, ok := <-watcher.Events:
				if !ok {
					return observe.ErrExhausted
				}
				if !evt.Has(fsnotify.Write) {
					continue
				}
				if err := yield(observation(dir, evt.Name)); err != nil {
					return err
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return observe.ErrExhausted
				}
				if errors.Is(err, fsnotify.ErrEventOverflow) {
					opts.Logger.Warn("event queue overflow", zap.String("dir", dir))
					continue
				}
				return fmt.Errorf("watch %s: %w", dir, err)
			}
		}
	}, nil
}
