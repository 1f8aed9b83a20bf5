package heapcap

import (
	"sync/atomic"
	"time"

	"github.com/heapcap/heapcap/internal/interfaces"
)

// Metrics accumulates operational counters for a running Server or Client.
type Metrics struct {
	AllocCount atomic.Uint64
	FreeCount  atomic.Uint64
	AllocBytes atomic.Uint64
	FreeBytes  atomic.Uint64

	MarkPasses      atomic.Uint64
	MarkScanned     atomic.Uint64
	MarkFreed       atomic.Uint64
	MarkDurationNs  atomic.Uint64

	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint32

	FrameFlushes      atomic.Uint64
	FrameFlushEvents  atomic.Uint64
	FrameFlushNs      atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics returns a Metrics with StartTime set to now.
func NewMetrics(now time.Time) *Metrics {
	m := &Metrics{}
	m.StartTime.Store(now.UnixNano())
	return m
}

func (m *Metrics) ObserveAlloc(size uint64) {
	m.AllocCount.Add(1)
	m.AllocBytes.Add(size)
}

func (m *Metrics) ObserveFree(size uint64) {
	m.FreeCount.Add(1)
	m.FreeBytes.Add(size)
}

func (m *Metrics) ObserveMarkPass(durationNs uint64, scanned, freed int) {
	m.MarkPasses.Add(1)
	m.MarkScanned.Add(uint64(scanned))
	m.MarkFreed.Add(uint64(freed))
	m.MarkDurationNs.Add(durationNs)
}

func (m *Metrics) ObserveQueueDepth(depth uint32) {
	m.QueueDepthTotal.Add(uint64(depth))
	m.QueueDepthCount.Add(1)
	for {
		cur := m.MaxQueueDepth.Load()
		if depth <= cur {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(cur, depth) {
			break
		}
	}
}

func (m *Metrics) ObserveFrameFlush(events int, durationNs uint64) {
	m.FrameFlushes.Add(1)
	m.FrameFlushEvents.Add(uint64(events))
	m.FrameFlushNs.Add(durationNs)
}

// Stop records the stop timestamp, freezing uptime-derived snapshot fields.
func (m *Metrics) Stop(now time.Time) {
	m.StopTime.Store(now.UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics, with derived rates.
type MetricsSnapshot struct {
	AllocCount, FreeCount           uint64
	AllocBytes, FreeBytes           uint64
	MarkPasses, MarkScanned, MarkFreed uint64
	AvgMarkDurationNs               uint64
	AvgQueueDepth                   float64
	MaxQueueDepth                   uint32
	FrameFlushes, FrameFlushEvents  uint64
	UptimeNs                        uint64
}

// Snapshot computes a MetricsSnapshot as of now (used instead of
// time.Now() directly so callers control the reference clock).
func (m *Metrics) Snapshot(now time.Time) MetricsSnapshot {
	snap := MetricsSnapshot{
		AllocCount:       m.AllocCount.Load(),
		FreeCount:        m.FreeCount.Load(),
		AllocBytes:       m.AllocBytes.Load(),
		FreeBytes:        m.FreeBytes.Load(),
		MarkPasses:       m.MarkPasses.Load(),
		MarkScanned:      m.MarkScanned.Load(),
		MarkFreed:        m.MarkFreed.Load(),
		MaxQueueDepth:    m.MaxQueueDepth.Load(),
		FrameFlushes:     m.FrameFlushes.Load(),
		FrameFlushEvents: m.FrameFlushEvents.Load(),
	}
	if snap.MarkPasses > 0 {
		snap.AvgMarkDurationNs = m.MarkDurationNs.Load() / snap.MarkPasses
	}
	if count := m.QueueDepthCount.Load(); count > 0 {
		snap.AvgQueueDepth = float64(m.QueueDepthTotal.Load()) / float64(count)
	}
	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(now.UnixNano() - start)
	}
	return snap
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveAlloc(uint64)                    {}
func (NoOpObserver) ObserveFree(uint64)                     {}
func (NoOpObserver) ObserveMarkPass(uint64, int, int)       {}
func (NoOpObserver) ObserveQueueDepth(uint32)                {}
func (NoOpObserver) ObserveFrameFlush(int, uint64)           {}

var _ interfaces.Observer = (*Metrics)(nil)
var _ interfaces.Observer = NoOpObserver{}
