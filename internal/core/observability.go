package core

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder observes store operations. Operations are "set", "delete",
// "clear", "batch", "persist", "broadcast" and "apply".
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) Observe(context.Context, string, bool, time.Duration) {}

var expvarSeq atomic.Uint64

type opTally struct {
	totalMS  float64
	outcomes [2]int64 // indexed by success
}

// ExpvarMetricsRecorder keeps per-operation totals in memory and publishes
// them as a JSON snapshot through expvar.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*opTally
}

// ExpvarMetricsSnapshot is the published form of an ExpvarMetricsRecorder.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated mfestate_store_metrics_<n> name when name is empty. expvar names
// are process-global, so publishing the same name twice panics.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("mfestate_store_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: map[string]*opTally{}}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := ExpvarMetricsSnapshot{
		DurationsMS: make(map[string]float64, len(r.ops)),
		Results:     make(map[string]map[string]int64, len(r.ops)),
		RecordedAt:  time.Now().UTC(),
	}
	for op, tally := range r.ops {
		snap.DurationsMS[op] = tally.totalMS
		counts := make(map[string]int64, 2)
		for i, n := range tally.outcomes {
			if n > 0 {
				counts[statusLabel(i == 1)] = n
			}
		}
		snap.Results[op] = counts
	}
	return snap
}

func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tally, ok := r.ops[operation]
	if !ok {
		tally = &opTally{}
		r.ops[operation] = tally
	}
	tally.totalMS += float64(duration) / float64(time.Millisecond)
	if success {
		tally.outcomes[1]++
	} else {
		tally.outcomes[0]++
	}
}

// PrometheusMetricsRecorder exports operation counts and latencies as
// <namespace>_operations_total{operation,status} and
// <namespace>_operation_duration_seconds{operation}.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the recorder's collectors on reg.
// A nil reg uses prometheus.DefaultRegisterer. Collectors already registered
// under the same names are reused.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer, namespace string) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "mfestate"
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "State store operations by outcome.",
	}, []string{"operation", "status"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "State store operation latency.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"operation"})

	var err error
	if operations, err = registerOrReuse(reg, operations); err != nil {
		return nil, err
	}
	if durations, err = registerOrReuse(reg, durations); err != nil {
		return nil, err
	}
	return &PrometheusMetricsRecorder{operations: operations, durations: durations}, nil
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metrics: %w", err)
	}
	return c, nil
}

// Observe records a store operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, statusLabel(success)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
