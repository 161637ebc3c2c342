// Package observe holds the count-until-target loop shared by every strategy.
//
// A strategy supplies a Source whose Next returns one observation at a time.
// Blocking sources issue syscalls directly on the caller's goroutine; a Pump
// moves production onto a private loop goroutine and hands observations over
// a channel, making every Next a suspension point.
package observe

import (
	"context"
	"errors"
	"fmt"
)

// ErrExhausted is returned by a Source that can produce no more observations.
var ErrExhausted = errors.New("observation source exhausted")

// Observation is one directory entry or one decoded change event.
type Observation struct {
	// Name is the entry name relative to the observed directory. Events that
	// carry no name (e.g. about the directory itself) leave it empty.
	Name string
	// Path is the full path of the entry when known.
	Path string
}

// Source yields observations one at a time, blocking until one is available.
type Source interface {
	Next(ctx context.Context) (Observation, error)
	Close() error
}

// State is the lifecycle of an Observer.
type State int

const (
	Idle State = iota
	Observing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Observing:
		return "observing"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Observer counts name-bearing observations until Target is reached.
type Observer struct {
	Target int

	// Accept, when set, decides whether a named observation counts.
	Accept func(Observation) bool

	state State
	count int
}

// Count returns the number of observations counted so far.
func (o *Observer) Count() int { return o.count }

// Run pulls from src until Target observations have been counted. The target
// is checked after every observation, so the returned count equals Target on
// success. Errors from src are returned as-is together with the partial count.
func (o *Observer) Run(ctx context.Context, src Source) (int, error) {
	if o.state != Idle {
		return o.count, fmt.Errorf("observer already %s", o.state)
	}
	o.state = Observing

	for o.count < o.Target {
		obs, err := src.Next(ctx)
		if err != nil {
			return o.count, err
		}
		if obs.Name == "" {
			continue
		}
		if o.Accept != nil && !o.Accept(obs) {
			continue
		}
		o.count++
	}

	o.state = Done
	return o.count, nil
}

// Count runs a fresh Observer against src and closes src afterwards.
func Count(ctx context.Context, src Source, target int, accept func(Observation) bool) (int, error) {
	o := &Observer{Target: target, Accept: accept}
	n, err := o.Run(ctx, src)
	if cerr := src.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return n, err
}
