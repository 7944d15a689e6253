package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncRedirectCacheHit()                             {}
func (n *NoopRecorder) IncRedirectCacheMiss()                            {}
func (n *NoopRecorder) ObserveRedirectDuration(duration time.Duration)   {}
func (n *NoopRecorder) IncDetachedTaskDropped()                          {}
func (n *NoopRecorder) ObserveDetachedTaskDuration(duration time.Duration) {}
func (n *NoopRecorder) IncCounterIncrement(plan string, admitted bool)   {}
func (n *NoopRecorder) IncAnalyticsEventPublished(status string)        {}
func (n *NoopRecorder) IncAnalyticsEventProcessed(status string)        {}
func (n *NoopRecorder) ObserveAnalyticsBatchSize(size int)               {}
func (n *NoopRecorder) ObserveAnalyticsBatchDuration(duration time.Duration) {}
func (n *NoopRecorder) SetAnalyticsQueueDepth(depth int64)               {}
func (n *NoopRecorder) ObserveAnalyticsIngestLag(lag time.Duration)      {}
func (n *NoopRecorder) IncAggregationRun(status string)                  {}
func (n *NoopRecorder) ObserveAggregationBatchSize(size int)             {}
func (n *NoopRecorder) ObserveAggregationDuration(duration time.Duration) {}
func (n *NoopRecorder) IncRetentionDeleted(count int)                    {}
func (n *NoopRecorder) IncBillingInvoiceCreated()                        {}
func (n *NoopRecorder) IncBillingMismatch()                              {}
