package observe

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Yield hands one observation to the consumer, suspending the loop until it
// is taken. It returns an error once the pump is closed.
type Yield func(Observation) error

// Generator is the body of a pump loop. It should call yield for every
// observation and return when yield fails or its context ends.
type Generator func(ctx context.Context, yield Yield) error

// Pump runs a Generator on its own loop goroutine and exposes it as a Source.
// The handoff channel is unbuffered, so producer and consumer alternate the
// way tasks on a single-threaded scheduler would.
type Pump struct {
	ch     chan Observation
	cancel context.CancelFunc
	g      *errgroup.Group
}

// NewPump starts gen. The loop lives until Close.
func NewPump(ctx context.Context, gen Generator) *Pump {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	p := &Pump{
		ch:     make(chan Observation),
		cancel: cancel,
		g:      g,
	}

	g.Go(func() error {
		defer close(p.ch)
		return gen(gctx, func(obs Observation) error {
			select {
			case p.ch <- obs:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	return p
}

// Next waits for the loop to yield. When the loop has ended, its error is
// returned, or ErrExhausted if it finished cleanly.
func (p *Pump) Next(ctx context.Context) (Observation, error) {
	select {
	case obs, ok := <-p.ch:
		if !ok {
			if err := p.g.Wait(); err != nil {
				return Observation{}, err
			}
			return Observation{}, ErrExhausted
		}
		return obs, nil
	case <-ctx.Done():
		return Observation{}, ctx.Err()
	}
}

// Close stops the loop and waits for it to exit.
func (p *Pump) Close() error {
	p.cancel()
	if err := p.g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
