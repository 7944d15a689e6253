// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Redirect path
	IncRedirectCacheHit()
	IncRedirectCacheMiss()
	ObserveRedirectDuration(duration time.Duration)

	// Detached task pool
	IncDetachedTaskDropped()
	ObserveDetachedTaskDuration(duration time.Duration)

	// Workspace Counter
	IncCounterIncrement(plan string, admitted bool)

	// Click Log Writer / queue
	IncAnalyticsEventPublished(status string) // status: "success" or "dropped"
	IncAnalyticsEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveAnalyticsBatchSize(size int)
	ObserveAnalyticsBatchDuration(duration time.Duration)
	SetAnalyticsQueueDepth(depth int64)
	ObserveAnalyticsIngestLag(lag time.Duration)

	// Aggregator
	IncAggregationRun(status string) // status: "success", "failed"
	ObserveAggregationBatchSize(size int)
	ObserveAggregationDuration(duration time.Duration)

	// Retention
	IncRetentionDeleted(count int)

	// Billing
	IncBillingInvoiceCreated()
	IncBillingMismatch()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
