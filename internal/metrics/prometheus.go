package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder by exporting counters/histograms
// through the default or a caller-supplied prometheus.Registerer, following
// the same Recorder-interface-over-a-real-backend shape the teacher's
// in-memory/no-op duality already establishes — this is the domain-stack
// wiring that gives the interface a production implementation.
type PrometheusRecorder struct {
	redirectCacheHits   prometheus.Counter
	redirectCacheMisses prometheus.Counter
	redirectDuration    prometheus.Histogram

	detachedTaskDropped  prometheus.Counter
	detachedTaskDuration prometheus.Histogram

	counterIncrements *prometheus.CounterVec

	clickEventPublished *prometheus.CounterVec
	clickEventProcessed *prometheus.CounterVec
	clickBatchSize      prometheus.Histogram
	clickBatchDuration  prometheus.Histogram
	clickQueueDepth     prometheus.Gauge
	clickIngestLag      prometheus.Histogram

	aggregationRuns          *prometheus.CounterVec
	aggregationBatchSize     prometheus.Histogram
	aggregationDuration      prometheus.Histogram

	retentionDeleted prometheus.Counter

	billingInvoicesCreated prometheus.Counter
	billingMismatches      prometheus.Counter
}

// NewPrometheus builds a PrometheusRecorder and registers its collectors on
// reg. Pass prometheus.DefaultRegisterer to expose metrics on the default
// /metrics handler.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		redirectCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clickplane", Subsystem: "redirect", Name: "cache_hits_total",
			Help: "Plan cache hits on the redirect path.",
		}),
		redirectCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clickplane", Subsystem: "redirect", Name: "cache_misses_total",
			Help: "Plan cache misses on the redirect path.",
		}),
		redirectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clickplane", Subsystem: "redirect", Name: "duration_seconds",
			Help: "Time to resolve and respond on the redirect path.", Buckets: prometheus.DefBuckets,
		}),
		detachedTaskDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clickplane", Subsystem: "detached", Name: "tasks_dropped_total",
			Help: "Detached tasks dropped because the queue was full.",
		}),
		detachedTaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clickplane", Subsystem: "detached", Name: "task_duration_seconds",
			Help: "Time to run a detached task to completion.", Buckets: prometheus.DefBuckets,
		}),
		counterIncrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clickplane", Subsystem: "counter", Name: "increments_total",
			Help: "Workspace Counter increment attempts.",
		}, []string{"plan", "admitted"}),
		clickEventPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clickplane", Subsystem: "clicklog", Name: "published_total",
			Help: "Click events published onto the queue.",
		}, []string{"status"}),
		clickEventProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clickplane", Subsystem: "clicklog", Name: "processed_total",
			Help: "Click events processed by the queue consumer.",
		}, []string{"status"}),
		clickBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clickplane", Subsystem: "clicklog", Name: "batch_size",
			Help: "Click log consumer batch sizes.", Buckets: []float64{1, 10, 50, 100, 200, 500, 1000},
		}),
		clickBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clickplane", Subsystem: "clicklog", Name: "batch_duration_seconds",
			Help: "Click log consumer batch processing duration.", Buckets: prometheus.DefBuckets,
		}),
		clickQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clickplane", Subsystem: "clicklog", Name: "queue_depth",
			Help: "Pending + lag on the click queue consumer group.",
		}),
		clickIngestLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clickplane", Subsystem: "clicklog", Name: "ingest_lag_seconds",
			Help: "Time from click occurrence to raw-log insert.", Buckets: prometheus.DefBuckets,
		}),
		aggregationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clickplane", Subsystem: "aggregator", Name: "runs_total",
			Help: "Aggregator batch runs.",
		}, []string{"status"}),
		aggregationBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clickplane", Subsystem: "aggregator", Name: "batch_size",
			Help: "Raw clicks processed per aggregator batch.", Buckets: []float64{1, 10, 100, 500, 1000, 5000},
		}),
		aggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clickplane", Subsystem: "aggregator", Name: "batch_duration_seconds",
			Help: "Aggregator batch duration.", Buckets: prometheus.DefBuckets,
		}),
		retentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clickplane", Subsystem: "retention", Name: "deleted_rows_total",
			Help: "Raw click rows deleted by the retention job.",
		}),
		billingInvoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clickplane", Subsystem: "billing", Name: "invoice_items_created_total",
			Help: "Overage invoice items created by the Billing Reporter.",
		}),
		billingMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clickplane", Subsystem: "billing", Name: "mismatches_total",
			Help: "Reported-vs-live counter mismatches logged by the Reconciler.",
		}),
	}

	reg.MustRegister(
		r.redirectCacheHits, r.redirectCacheMisses, r.redirectDuration,
		r.detachedTaskDropped, r.detachedTaskDuration,
		r.counterIncrements,
		r.clickEventPublished, r.clickEventProcessed, r.clickBatchSize, r.clickBatchDuration,
		r.clickQueueDepth, r.clickIngestLag,
		r.aggregationRuns, r.aggregationBatchSize, r.aggregationDuration,
		r.retentionDeleted,
		r.billingInvoicesCreated, r.billingMismatches,
	)

	return r
}

func (r *PrometheusRecorder) IncRedirectCacheHit()  { r.redirectCacheHits.Inc() }
func (r *PrometheusRecorder) IncRedirectCacheMiss() { r.redirectCacheMisses.Inc() }
func (r *PrometheusRecorder) ObserveRedirectDuration(d time.Duration) {
	r.redirectDuration.Observe(d.Seconds())
}

func (r *PrometheusRecorder) IncDetachedTaskDropped() { r.detachedTaskDropped.Inc() }
func (r *PrometheusRecorder) ObserveDetachedTaskDuration(d time.Duration) {
	r.detachedTaskDuration.Observe(d.Seconds())
}

func (r *PrometheusRecorder) IncCounterIncrement(plan string, admitted bool) {
	r.counterIncrements.WithLabelValues(plan, boolLabel(admitted)).Inc()
}

func (r *PrometheusRecorder) IncAnalyticsEventPublished(status string) {
	r.clickEventPublished.WithLabelValues(status).Inc()
}

func (r *PrometheusRecorder) IncAnalyticsEventProcessed(status string) {
	r.clickEventProcessed.WithLabelValues(status).Inc()
}

func (r *PrometheusRecorder) ObserveAnalyticsBatchSize(size int) {
	r.clickBatchSize.Observe(float64(size))
}

func (r *PrometheusRecorder) ObserveAnalyticsBatchDuration(d time.Duration) {
	r.clickBatchDuration.Observe(d.Seconds())
}

func (r *PrometheusRecorder) SetAnalyticsQueueDepth(depth int64) {
	r.clickQueueDepth.Set(float64(depth))
}

func (r *PrometheusRecorder) ObserveAnalyticsIngestLag(lag time.Duration) {
	r.clickIngestLag.Observe(lag.Seconds())
}

func (r *PrometheusRecorder) IncAggregationRun(status string) {
	r.aggregationRuns.WithLabelValues(status).Inc()
}

func (r *PrometheusRecorder) ObserveAggregationBatchSize(size int) {
	r.aggregationBatchSize.Observe(float64(size))
}

func (r *PrometheusRecorder) ObserveAggregationDuration(d time.Duration) {
	r.aggregationDuration.Observe(d.Seconds())
}

func (r *PrometheusRecorder) IncRetentionDeleted(count int) {
	r.retentionDeleted.Add(float64(count))
}

func (r *PrometheusRecorder) IncBillingInvoiceCreated() { r.billingInvoicesCreated.Inc() }
func (r *PrometheusRecorder) IncBillingMismatch()       { r.billingMismatches.Inc() }

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
