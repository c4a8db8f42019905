package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder observes lifecycle operations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Observe(ctx context.Context, op string, success bool, duration time.Duration)
	RemindersCreated(n int)
}

// Noop discards every observation.
type Noop struct{}

func (Noop) Observe(context.Context, string, bool, time.Duration) {}
func (Noop) RemindersCreated(int)                                 {}

// Prometheus records into its own registry, exposed through Handler.
type Prometheus struct {
	registry  *prometheus.Registry
	ops       *prometheus.CounterVec
	durations *prometheus.HistogramVec
	reminders prometheus.Counter
}

func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpfleet",
			Name:      "lifecycle_operations_total",
			Help:      "Device lifecycle operations by operation and result.",
		}, []string{"op", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pumpfleet",
			Name:      "lifecycle_operation_duration_seconds",
			Help:      "Duration of device lifecycle operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pumpfleet",
			Name:      "replacement_reminders_created_total",
			Help:      "Replacement reminders created by the alert sweep.",
		}),
	}
	reg.MustRegister(
		p.ops, p.durations, p.reminders,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	result := "ok"
	if !success {
		result = "error"
	}
	p.ops.WithLabelValues(op, result).Inc()
	p.durations.WithLabelValues(op).Observe(duration.Seconds())
}

func (p *Prometheus) RemindersCreated(n int) {
	if n > 0 {
		p.reminders.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
