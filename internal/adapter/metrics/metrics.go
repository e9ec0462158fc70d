// Package metrics records job runs as OpenTelemetry instruments.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"jobkeeper/internal/jobs"
)

// meterName is the instrumentation scope name for jobkeeper metrics.
const meterName = "jobkeeper"

// Status attribute values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Recorder holds the run instruments. Instruments are safe for concurrent use.
//
// Instruments:
//   - jobkeeper.job.duration (Float64Histogram): handler time in seconds,
//     attributes job, status
//   - jobkeeper.job.executions (Int64Counter): fires, attributes job,
//     status (ok, error or skipped)
type Recorder struct {
	duration   metric.Float64Histogram
	executions metric.Int64Counter
}

// New uses the global MeterProvider. Without one configured the
// instruments are noops.
func New() *Recorder {
	return NewWithMeter(otel.Meter(meterName))
}

// NewWithMeter builds the instruments on meter.
func NewWithMeter(meter metric.Meter) *Recorder {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"jobkeeper.job.duration",
		metric.WithDescription("Duration of job handler execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"jobkeeper.job.executions",
		metric.WithDescription("Total number of job fires by outcome"),
		metric.WithUnit("{execution}"),
	)
	return &Recorder{duration: duration, executions: executions}
}

// Hooks returns scheduler hooks feeding this recorder.
func (r *Recorder) Hooks() jobs.Hooks {
	return jobs.Hooks{
		OnFinish: r.finished,
		OnSkip:   r.skipped,
	}
}

func (r *Recorder) finished(job string, d time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	attrs := metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status),
	)
	ctx := context.Background()
	r.duration.Record(ctx, d.Seconds(), attrs)
	r.executions.Add(ctx, 1, attrs)
}

func (r *Recorder) skipped(job string) {
	r.executions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", StatusSkipped),
	))
}

// Combine fans every hook out to each set in order.
func Combine(sets ...jobs.Hooks) jobs.Hooks {
	var out jobs.Hooks
	for _, h := range sets {
		h := h // per-iteration copy; go.mod targets go1.21 loop semantics
		if h.OnStart != nil {
			prev := out.OnStart
			out.OnStart = func(job string) {
				if prev != nil {
					prev(job)
				}
				h.OnStart(job)
			}
		}
		if h.OnFinish != nil {
			prev := out.OnFinish
			out.OnFinish = func(job string, d time.Duration, err error) {
				if prev != nil {
					prev(job, d, err)
				}
				h.OnFinish(job, d, err)
			}
		}
		if h.OnSkip != nil {
			prev := out.OnSkip
			out.OnSkip = func(job string) {
				if prev != nil {
					prev(job)
				}
				h.OnSkip(job)
			}
		}
	}
	return out
}
