package bench

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/saworbit/dirbench/pkg/config"
	"github.com/saworbit/dirbench/pkg/enumerate"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.TargetCount = 50
	cfg.Warmup = 20 * time.Millisecond
	return cfg
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0.000s"},
		{7 * time.Millisecond, "0.007s"},
		{1500 * time.Millisecond, "1.500s"},
		{3042*time.Millisecond + 999*time.Microsecond, "3.042s"},
		{61*time.Second + 5*time.Millisecond, "61.005s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), "FormatDuration(%s)", tt.in)
	}
}

func TestPrepareCreatesNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "bench")
	require.NoError(t, Prepare(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPrepareRejectsExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644))

	err := Prepare(dir)
	require.ErrorIs(t, err, ErrDirExists)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "Prepare must not touch an existing directory")
}

func TestPrepareRejectsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	assert.ErrorIs(t, Prepare(path), ErrDirExists)
}

func TestCleanup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bench")
	require.NoError(t, Prepare(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file1.txt"), []byte("Hello, world!"), 0o644))

	require.NoError(t, Cleanup(dir))
	_, err := os.Stat(dir)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDriverRunsStrategiesInOrder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bench")
	require.NoError(t, Prepare(dir))

	var order []string
	fake := func(name string) Strategy {
		return Strategy{Name: name, Run: func(ctx context.Context, d string, target int) (int, error) {
			order = append(order, name)
			return enumerate.ReadDir(ctx, d, target, enumerate.Options{})
		}}
	}

	var out bytes.Buffer
	d := &Driver{
		Dir:        dir,
		Config:     testConfig(),
		Strategies: []Strategy{fake("first"), fake("second"), fake("third")},
		Logger:     zaptest.NewLogger(t),
		Out:        &out,
	}

	summary, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, order)
	require.Len(t, summary.Results, 3)
	for _, r := range summary.Results {
		assert.GreaterOrEqual(t, r.Observed, 50)
	}
	assert.Positive(t, summary.FilesCreated)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "first duration: "))
	assert.True(t, strings.HasSuffix(lines[2], "s"))

	// the producer has stopped: the directory no longer grows
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	again, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, len(entries), len(again))
	assert.Equal(t, int(summary.FilesCreated), len(again))
}

func TestDriverStopsProducerOnStrategyFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bench")
	require.NoError(t, Prepare(dir))

	boom := errors.New("listing failed")
	var ran atomic.Bool
	d := &Driver{
		Dir:    dir,
		Config: testConfig(),
		Strategies: []Strategy{
			{Name: "broken", Run: func(context.Context, string, int) (int, error) { return 0, boom }},
			{Name: "never", Run: func(context.Context, string, int) (int, error) { ran.Store(true); return 0, nil }},
		},
	}

	summary, err := d.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "broken")
	assert.False(t, ran.Load())
	assert.Empty(t, summary.Results)
	assert.Positive(t, summary.FilesCreated)
}

func TestDriverReportsProducerFailure(t *testing.T) {
	fatal := make(chan error, 1)
	d := &Driver{
		Dir:    filepath.Join(t.TempDir(), "never-created"),
		Config: testConfig(),
		Fatal:  func(err error) { fatal <- err },
	}

	_, err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	select {
	case ferr := <-fatal:
		assert.ErrorIs(t, ferr, os.ErrNotExist)
	default:
		t.Fatal("fatal hook not called")
	}
}

func TestDriverWarmupHonoursContext(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bench")
	require.NoError(t, Prepare(dir))

	cfg := testConfig()
	cfg.Warmup = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Driver{Dir: dir, Config: cfg, Strategies: []Strategy{
		{Name: "unreached", Run: func(context.Context, string, int) (int, error) {
			t.Error("strategy ran after cancellation")
			return 0, nil
		}},
	}}

	_, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultStrategiesOrder(t *testing.T) {
	var names []string
	for _, s := range DefaultStrategies(config.DefaultConfig(), nil) {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"read_dir", "read_dir_sorted", "readdir async", "inotify", "inotify async"}, names)
}
