//go:build !linux

package watch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/saworbit/dirbench/pkg/observe"
)

type InotifySource struct{}

// NewInotifySource reports unsupported platforms.
func NewInotifySource(string, int) (*InotifySource, error) {
	return nil, ErrUnsupported
}

func (*InotifySource) Next(context.Context) (observe.Observation, error) {
	return observe.Observation{}, ErrUnsupported
}
func (*InotifySource) Close() error { return nil }

func (*InotifySource) SetLogger(*zap.Logger) {}

func subscribeNotify(dir string, _ Options) (observe.Generator, error) {
	return nil, fmt.Errorf("cannot watch %s: %w", dir, ErrUnsupported)
}
