package observe

import (
	"context"
	"testing"
	"time"
)

type syntheticSource struct{ left int }

func (s *syntheticSource) Next(context.Context) (Observation, error) {
	if s.left == 0 {
		return Observation{}, ErrExhausted
	}
	s.left--
	return Observation{Name: "file1.txt"}, nil
}

func (s *syntheticSource) Close() error { return nil }

// benchmarkPipeline counts b.N synthetic observations delivered either
// directly or through a Pump, which adds one goroutine handoff per item.
func benchmarkPipeline(b *testing.B, pumped bool) {
	ctx := context.Background()

	var src Source = &syntheticSource{left: b.N}
	if pumped {
		src = NewPump(ctx, func(ctx context.Context, yield Yield) error {
			for i := 0; i < b.N; i++ {
				if err := yield(Observation{Name: "file1.txt"}); err != nil {
					return err
				}
			}
			return nil
		})
	}

	b.ResetTimer()
	start := time.Now()
	n, err := Count(ctx, src, b.N, nil)
	elapsed := time.Since(start)
	if err != nil {
		b.Fatal(err)
	}
	if n != b.N {
		b.Fatalf("counted %d, want %d", n, b.N)
	}
	if elapsed == 0 {
		elapsed = time.Nanosecond
	}
	b.ReportMetric(float64(b.N)/elapsed.Seconds(), "observations/sec")
}

func BenchmarkDirectSource(b *testing.B) {
	b.ReportAllocs()
	benchmarkPipeline(b, false)
}

func BenchmarkPumpedSource(b *testing.B) {
	b.ReportAllocs()
	benchmarkPipeline(b, true)
}
