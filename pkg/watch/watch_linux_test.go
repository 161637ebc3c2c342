//go:build linux

package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/saworbit/dirbench/pkg/config"
	"github.com/saworbit/dirbench/pkg/producer"
)

// withProducer keeps files flowing into a fresh directory for the duration of fn.
func withProducer(t *testing.T, fn func(dir string)) {
	t.Helper()

	dir := t.TempDir()
	p := producer.New(dir, nil, zaptest.NewLogger(t))
	stop := producer.NewSignal()
	done := make(chan error, 1)
	go func() { done <- p.Run(stop) }()

	defer func() {
		stop.Send()
		require.NoError(t, <-done)
	}()

	fn(dir)
}

func TestInotifyAgainstProducer(t *testing.T) {
	withProducer(t, func(dir string) {
		n, err := Inotify(context.Background(), dir, 500, Options{Logger: zaptest.NewLogger(t)})
		require.NoError(t, err)
		assert.Equal(t, 500, n)
	})
}

func TestInotifyAsyncBackends(t *testing.T) {
	for _, backend := range []string{config.BackendNotify, config.BackendFSNotify} {
		t.Run(backend, func(t *testing.T) {
			withProducer(t, func(dir string) {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()

				n, err := InotifyAsync(ctx, dir, 500, Options{Backend: backend, Logger: zaptest.NewLogger(t)})
				require.NoError(t, err)
				assert.Equal(t, 500, n)
			})
		})
	}
}

func TestInotifyAsyncUnknownBackend(t *testing.T) {
	_, err := InotifyAsync(context.Background(), t.TempDir(), 1, Options{Backend: "kqueue"})
	assert.ErrorContains(t, err, "unknown watch backend")
}

func TestInotifyAsyncMissingDirectory(t *testing.T) {
	for _, backend := range []string{config.BackendNotify, config.BackendFSNotify} {
		t.Run(backend, func(t *testing.T) {
			_, err := InotifyAsync(context.Background(), "/nonexistent/dirbench", 1, Options{Backend: backend})
			assert.Error(t, err)
		})
	}
}

func TestObservationNaming(t *testing.T) {
	obs := observation("/bench", "/bench/file3.txt")
	assert.Equal(t, "file3.txt", obs.Name)
	assert.Equal(t, "/bench/file3.txt", obs.Path)

	assert.Empty(t, observation("/bench", "/bench").Name)
	assert.Empty(t, observation("/bench", "/elsewhere/file3.txt").Name)
	assert.Equal(t, "file3.txt", observation("/bench", "/bench/./file3.txt").Name)
}
