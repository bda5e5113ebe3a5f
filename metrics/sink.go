// Package metrics exports pool activity to Prometheus. A PoolSink is built
// through the pool's lazy sink factory, so collectors are registered only
// once the pool actually runs work.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ByteMirror/cogs/concurrency"
)

// PoolSink implements concurrency.Sink on top of Prometheus collectors.
type PoolSink struct {
	tasksTotal    *prometheus.CounterVec
	rejectedTotal *prometheus.CounterVec
	workers       *prometheus.GaugeVec
	queueDepth    prometheus.Gauge
	taskDuration  prometheus.Histogram
}

// NewPoolSink registers the pool collectors on reg. The pool label lets
// several pools share one registry.
func NewPoolSink(reg prometheus.Registerer, pool string) (*PoolSink, error) {
	s := &PoolSink{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "cogs",
			Subsystem:   "pool",
			Name:        "tasks_total",
			Help:        "Tasks finished by the pool, by outcome.",
			ConstLabels: prometheus.Labels{"pool": pool},
		}, []string{"outcome"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "cogs",
			Subsystem:   "pool",
			Name:        "tasks_rejected_total",
			Help:        "Submissions refused by a rejection policy.",
			ConstLabels: prometheus.Labels{"pool": pool},
		}, []string{"policy"}),
		workers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "cogs",
			Subsystem:   "pool",
			Name:        "workers",
			Help:        "Live workers, by kind.",
			ConstLabels: prometheus.Labels{"pool": pool},
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cogs",
			Subsystem:   "pool",
			Name:        "queue_depth",
			Help:        "Tasks currently waiting in the work queue.",
			ConstLabels: prometheus.Labels{"pool": pool},
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "cogs",
			Subsystem:   "pool",
			Name:        "task_duration_seconds",
			Help:        "Task execution time.",
			ConstLabels: prometheus.Labels{"pool": pool},
			Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}

	for _, c := range []prometheus.Collector{
		s.tasksTotal, s.rejectedTotal, s.workers, s.queueDepth, s.taskDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register pool collector: %w", err)
		}
	}
	return s, nil
}

func (s *PoolSink) TaskObserved(duration time.Duration, err error) {
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	s.tasksTotal.WithLabelValues(outcome).Inc()
	s.taskDuration.Observe(duration.Seconds())
}

func (s *PoolSink) TaskRejected(policy concurrency.RejectionPolicy) {
	s.rejectedTotal.WithLabelValues(policy.String()).Inc()
}

func (s *PoolSink) WorkerStarted(core bool) {
	s.workers.WithLabelValues(workerKind(core)).Inc()
}

func (s *PoolSink) WorkerStopped(core bool) {
	s.workers.WithLabelValues(workerKind(core)).Dec()
}

func (s *PoolSink) QueueDepth(depth int) {
	s.queueDepth.Set(float64(depth))
}

func workerKind(core bool) string {
	if core {
		return "core"
	}
	return "overflow"
}
