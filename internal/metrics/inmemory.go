package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	RedirectCacheHits       uint64
	RedirectCacheMisses     uint64
	RedirectDurationCount   uint64
	RedirectDurationTotalNs int64
	DetachedTaskDropped     uint64
	CounterIncrements       uint64
	CounterRejections       uint64
	RetentionDeleted        uint64
	BillingInvoicesCreated  uint64
	BillingMismatches       uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	redirectCacheHits       uint64
	redirectCacheMisses     uint64
	redirectDurationCount   uint64
	redirectDurationTotalNs int64
	detachedTaskDropped     uint64
	counterIncrements       uint64
	counterRejections       uint64
	retentionDeleted        uint64
	billingInvoicesCreated  uint64
	billingMismatches       uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		RedirectCacheHits:       atomic.LoadUint64(&m.redirectCacheHits),
		RedirectCacheMisses:     atomic.LoadUint64(&m.redirectCacheMisses),
		RedirectDurationCount:   atomic.LoadUint64(&m.redirectDurationCount),
		RedirectDurationTotalNs: atomic.LoadInt64(&m.redirectDurationTotalNs),
		DetachedTaskDropped:     atomic.LoadUint64(&m.detachedTaskDropped),
		CounterIncrements:       atomic.LoadUint64(&m.counterIncrements),
		CounterRejections:       atomic.LoadUint64(&m.counterRejections),
		RetentionDeleted:        atomic.LoadUint64(&m.retentionDeleted),
		BillingInvoicesCreated:  atomic.LoadUint64(&m.billingInvoicesCreated),
		BillingMismatches:       atomic.LoadUint64(&m.billingMismatches),
	}
}

func (m *InMemoryRecorder) IncRedirectCacheHit()  { atomic.AddUint64(&m.redirectCacheHits, 1) }
func (m *InMemoryRecorder) IncRedirectCacheMiss() { atomic.AddUint64(&m.redirectCacheMisses, 1) }

func (m *InMemoryRecorder) ObserveRedirectDuration(duration time.Duration) {
	atomic.AddUint64(&m.redirectDurationCount, 1)
	atomic.AddInt64(&m.redirectDurationTotalNs, duration.Nanoseconds())
}

func (m *InMemoryRecorder) IncDetachedTaskDropped() {
	atomic.AddUint64(&m.detachedTaskDropped, 1)
}

func (m *InMemoryRecorder) ObserveDetachedTaskDuration(duration time.Duration) {}

func (m *InMemoryRecorder) IncCounterIncrement(plan string, admitted bool) {
	if admitted {
		atomic.AddUint64(&m.counterIncrements, 1)
		return
	}
	atomic.AddUint64(&m.counterRejections, 1)
}

func (m *InMemoryRecorder) IncAnalyticsEventPublished(status string)          {}
func (m *InMemoryRecorder) IncAnalyticsEventProcessed(status string)          {}
func (m *InMemoryRecorder) ObserveAnalyticsBatchSize(size int)                {}
func (m *InMemoryRecorder) ObserveAnalyticsBatchDuration(duration time.Duration) {}
func (m *InMemoryRecorder) SetAnalyticsQueueDepth(depth int64)                {}
func (m *InMemoryRecorder) ObserveAnalyticsIngestLag(lag time.Duration)       {}
func (m *InMemoryRecorder) IncAggregationRun(status string)                  {}
func (m *InMemoryRecorder) ObserveAggregationBatchSize(size int)              {}
func (m *InMemoryRecorder) ObserveAggregationDuration(duration time.Duration) {}

func (m *InMemoryRecorder) IncRetentionDeleted(count int) {
	atomic.AddUint64(&m.retentionDeleted, uint64(count))
}

func (m *InMemoryRecorder) IncBillingInvoiceCreated() {
	atomic.AddUint64(&m.billingInvoicesCreated, 1)
}

func (m *InMemoryRecorder) IncBillingMismatch() {
	atomic.AddUint64(&m.billingMismatches, 1)
}
