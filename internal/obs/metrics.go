// Package obs holds the lightweight counters and latency stats every
// long-lived component (bus, matcher, overlay) reports into: an
// atomic-counter Metrics container rather than a full metrics client.
package obs

import (
	"sync/atomic"
	"time"

	"github.com/ktrader-tech/broker-facade/internal/schema"
)

const maxEventType = int(schema.EventTradeReport)

// Metrics collects lightweight counters and latency stats for one broker
// facade instance (a SimAdapter or a SEP Overlay).
type Metrics struct {
	eventCounts  [maxEventType + 1]uint64
	queueDrops   uint64
	queueClosed  uint64
	ordersSent   uint64
	ordersFailed uint64

	orderFlowLatency     LatencyStats
	assetsRefreshLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts          map[schema.EventType]uint64
	QueueDrops           uint64
	QueueClosed          uint64
	OrdersSent           uint64
	OrdersFailed         uint64
	OrderFlowLatency     LatencySnapshot
	AssetsRefreshLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent increments the per-type counter for a posted BrokerEvent.
func (m *Metrics) ObserveEvent(t schema.EventType) {
	if m == nil {
		return
	}
	idx := int(t)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// IncQueueDrop records a bus post dropped because no subscriber consumed
// it in time (reserved for a future bounded-queue bus; the current bus is
// unbounded and never drops).
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueDrops, 1)
}

// IncQueueClosed records a post attempted after Release.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// IncOrderSent records a successful InsertOrder call.
func (m *Metrics) IncOrderSent() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersSent, 1)
}

// IncOrderFailed records a rejected InsertOrder call, whether it was
// refused locally or by the parent.
func (m *Metrics) IncOrderFailed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ordersFailed, 1)
}

// ObserveOrderFlow measures the InsertOrder-to-fill latency; the matcher
// records one sample per fill.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m == nil {
		return
	}
	m.orderFlowLatency.Observe(d)
}

// ObserveAssetsRefresh measures the debounce-to-recompute latency of the
// overlay's asset refresh.
func (m *Metrics) ObserveAssetsRefresh(d time.Duration) {
	if m == nil {
		return
	}
	m.assetsRefreshLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	return Snapshot{
		EventCounts:          eventCounts,
		QueueDrops:           atomic.LoadUint64(&m.queueDrops),
		QueueClosed:          atomic.LoadUint64(&m.queueClosed),
		OrdersSent:           atomic.LoadUint64(&m.ordersSent),
		OrdersFailed:         atomic.LoadUint64(&m.ordersFailed),
		OrderFlowLatency:     m.orderFlowLatency.Snapshot(),
		AssetsRefreshLatency: m.assetsRefreshLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
