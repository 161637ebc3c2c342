package metrics

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "dirbench"

var (
	// Registry is a dedicated Prometheus registry for all dirbench metrics.
	Registry = prometheus.NewRegistry()

	// StrategyDuration measures wall-clock time per strategy.
	StrategyDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strategy_duration_seconds",
			Help:      "Time taken by a strategy to reach its target count",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	// ObservationsTotal counts observations per strategy.
	ObservationsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_total",
			Help:      "Directory entries or change events counted by each strategy",
		},
		[]string{"strategy"},
	)

	// FilesCreated reports how many files the producer wrote in the last run.
	FilesCreated = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "files_created",
			Help:      "Files written by the producer during the last run",
		},
	)

	// RunsTotal counts benchmark runs by outcome.
	RunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of benchmark runs",
		},
		[]string{"outcome"}, // success | failure
	)

	// BuildInfo exposes static information about the binary.
	BuildInfo = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Static information about the running benchmark",
		},
		[]string{"os", "arch", "version", "watch_backend"},
	)
)

func init() {
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	Registry.MustRegister(prometheus.NewGoCollector())
}

// SetBuildInfo publishes a single info metric for the running binary.
func SetBuildInfo(version, watchBackend string) {
	if version == "" {
		version = "dev"
	}
	if watchBackend == "" {
		watchBackend = "unknown"
	}
	BuildInfo.WithLabelValues(runtime.GOOS, runtime.GOARCH, version, watchBackend).Set(1)
}

// ObserveStrategy records the duration and observation count of one strategy.
func ObserveStrategy(strategy string, elapsed time.Duration, observed int) {
	StrategyDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	if observed > 0 {
		ObservationsTotal.WithLabelValues(strategy).Add(float64(observed))
	}
}

// SetFilesCreated reports the producer's file count.
func SetFilesCreated(n int64) {
	if n < 0 {
		n = 0
	}
	FilesCreated.Set(float64(n))
}

// ObserveRun counts a finished run.
func ObserveRun(err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	RunsTotal.WithLabelValues(outcome).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Info("prometheus endpoint listening", zap.String("addr", addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}

	return err
}
