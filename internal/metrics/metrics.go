package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photomap_tasks_enqueued_total",
		Help: "Total tasks enqueued, by task type",
	}, []string{"type"})
	TasksExecutedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photomap_tasks_executed_total",
		Help: "Total tasks executed to completion, by task type",
	}, []string{"type"})
	TasksFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photomap_tasks_failed_total",
		Help: "Total task bodies that returned an error or panicked",
	}, []string{"type"})
	TasksAbortedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photomap_tasks_aborted_total",
		Help: "Total tasks aborted by preemption or cancellation",
	}, []string{"type"})
	TasksEvictedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photomap_tasks_evicted_total",
		Help: "Total queued tasks dropped for staleness or backpressure",
	}, []string{"reason"})
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "photomap_queue_depth",
		Help: "Queued (not running) tasks, by task type",
	}, []string{"type"})
	CullDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photomap_cull_duration_ms",
		Help:    "Culling recomputation duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"kind"})
	PhotosSelected = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "photomap_photos_selected",
		Help: "Photo count of the most recently published selection",
	}, []string{"kind"})
	PoolSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "photomap_pool_size",
		Help: "Photos currently held per source pool",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(
		TasksEnqueuedTotal,
		TasksExecutedTotal,
		TasksFailedTotal,
		TasksAbortedTotal,
		TasksEvictedTotal,
		QueueDepth,
		CullDurationMs,
		PhotosSelected,
		PoolSize,
	)
}

// Handler returns the Prometheus scrape handler for the status server
func Handler() http.Handler {
	return promhttp.Handler()
}
