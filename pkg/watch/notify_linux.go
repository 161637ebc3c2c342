//go:build linux

package watch

import (
	"context"
	"fmt"

	"github.com/syncthing/notify"
	"go.uber.org/zap"

	"github.com/saworbit/dirbench/pkg/observe"
)

// subscribeNotify registers IN_CLOSE_WRITE on dir through notify. notify never
// blocks on sending, so events arriving while the channel is full are lost;
// StreamBuffer bounds how far the consumer may fall behind.
func subscribeNotify(dir string, opts Options) (observe.Generator, error) {
	c := make(chan notify.EventInfo, opts.StreamBuffer)
	if err := notify.Watch(dir, c, notify.InCloseWrite); err != nil {
		notify.Stop(c)
		return nil, fmt.Errorf("cannot watch %s: %w", dir, err)
	}
	opts.Logger.Debug("subscribed", zap.String("dir", dir), zap.String("backend", "notify"))

	return func(ctx context.Context, yield observe.Yield) error {
		defer notify.Stop(c)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ei := <-c:
				if err := yield(observation(dir, ei.Path())); err != nil {
					return err
				}
			}
		}
	}, nil
}
