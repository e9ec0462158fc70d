package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"jobkeeper/internal/adapter/metrics"
	"jobkeeper/internal/jobs"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// countsByStatus sums the executions counter per status attribute.
func countsByStatus(t *testing.T, m *metricdata.Metrics) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64] data type")

	out := map[string]int64{}
	for _, dp := range sum.DataPoints {
		status, _ := dp.Attributes.Value("status")
		out[status.AsString()] += dp.Value
	}
	return out
}

func TestRecorder_Executions(t *testing.T) {
	reader, mp := setupTestMeter()
	hooks := metrics.NewWithMeter(mp.Meter("test")).Hooks()

	hooks.OnFinish("report", 120*time.Millisecond, nil)
	hooks.OnFinish("report", 80*time.Millisecond, errors.New("boom"))
	hooks.OnSkip("report")
	hooks.OnSkip("report")

	rm := collectMetrics(t, reader)
	m := findMetric(rm, "jobkeeper.job.executions")
	require.NotNil(t, m)
	assert.Equal(t, map[string]int64{"ok": 1, "error": 1, "skipped": 2}, countsByStatus(t, m))
}

func TestRecorder_Duration(t *testing.T) {
	reader, mp := setupTestMeter()
	hooks := metrics.NewWithMeter(mp.Meter("test")).Hooks()

	hooks.OnFinish("report", 1500*time.Millisecond, nil)

	rm := collectMetrics(t, reader)
	m := findMetric(rm, "jobkeeper.job.duration")
	require.NotNil(t, m)

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected Histogram[float64] data type")
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.0001)

	job, _ := hist.DataPoints[0].Attributes.Value("job")
	assert.Equal(t, "report", job.AsString())
}

func TestCombine(t *testing.T) {
	var order []string
	a := jobs.Hooks{
		OnStart:  func(string) { order = append(order, "a-start") },
		OnFinish: func(string, time.Duration, error) { order = append(order, "a-finish") },
	}
	b := jobs.Hooks{
		OnFinish: func(string, time.Duration, error) { order = append(order, "b-finish") },
		OnSkip:   func(string) { order = append(order, "b-skip") },
	}

	h := metrics.Combine(a, jobs.Hooks{}, b)
	h.OnStart("x")
	h.OnFinish("x", 0, nil)
	h.OnSkip("x")

	assert.Equal(t, []string{"a-start", "a-finish", "b-finish", "b-skip"}, order)
}

func TestNew_GlobalNoop(t *testing.T) {
	hooks := metrics.New().Hooks()
	assert.NotPanics(t, func() {
		hooks.OnFinish("x", time.Second, nil)
		hooks.OnSkip("x")
	})
}
