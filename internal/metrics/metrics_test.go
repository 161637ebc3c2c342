package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStrategyRecordsDurationAndCount(t *testing.T) {
	label := "read_dir_test"
	ObserveStrategy(label, 250*time.Millisecond, 40)
	ObserveStrategy(label, 10*time.Millisecond, 2)

	assert.Equal(t, float64(42), testutil.ToFloat64(ObservationsTotal.WithLabelValues(label)))

	mfs, err := Registry.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range mfs {
		if mf.GetName() != "dirbench_strategy_duration_seconds" {
			continue
		}
		for _, m := range mf.Metric {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "strategy" && lp.GetValue() == label {
					found = true
					assert.Equal(t, uint64(2), m.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	assert.True(t, found, "dirbench_strategy_duration_seconds not found for %s", label)
}

func TestSetFilesCreatedClampsNegative(t *testing.T) {
	SetFilesCreated(-5)
	assert.Zero(t, testutil.ToFloat64(FilesCreated))

	SetFilesCreated(1234)
	assert.Equal(t, float64(1234), testutil.ToFloat64(FilesCreated))
}

func TestObserveRunOutcomes(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("failure"))
	ObserveRun(errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("failure")))

	before = testutil.ToFloat64(RunsTotal.WithLabelValues("success"))
	ObserveRun(nil)
	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("success")))
}

func TestMetricsEndpointExposesCoreMetrics(t *testing.T) {
	ObserveStrategy("inotify_test_endpoint", time.Second, 1)
	SetBuildInfo("", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "dirbench_strategy_duration_seconds_bucket"), "missing histogram buckets")
	assert.True(t, strings.Contains(body, `watch_backend="unknown"`), "missing build info")
	assert.True(t, strings.Contains(body, `version="dev"`), "missing build info version")
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
