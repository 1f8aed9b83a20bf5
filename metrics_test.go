package heapcap

import (
	"testing"
	"time"
)

func TestMetricsObserveAllocFree(t *testing.T) {
	m := NewMetrics(time.Now())
	m.ObserveAlloc(48)
	m.ObserveAlloc(16)
	m.ObserveFree(48)

	snap := m.Snapshot(time.Now())
	if snap.AllocCount != 2 || snap.AllocBytes != 64 {
		t.Fatalf("alloc: count=%d bytes=%d", snap.AllocCount, snap.AllocBytes)
	}
	if snap.FreeCount != 1 || snap.FreeBytes != 48 {
		t.Fatalf("free: count=%d bytes=%d", snap.FreeCount, snap.FreeBytes)
	}
}

func TestMetricsObserveMarkPass(t *testing.T) {
	m := NewMetrics(time.Now())
	m.ObserveMarkPass(1_000_000, 100, 10)
	m.ObserveMarkPass(3_000_000, 200, 20)

	snap := m.Snapshot(time.Now())
	if snap.MarkPasses != 2 {
		t.Fatalf("MarkPasses: want 2, got %d", snap.MarkPasses)
	}
	if snap.AvgMarkDurationNs != 2_000_000 {
		t.Fatalf("AvgMarkDurationNs: want 2_000_000, got %d", snap.AvgMarkDurationNs)
	}
	if snap.MarkScanned != 300 || snap.MarkFreed != 30 {
		t.Fatalf("scanned/freed: %d/%d", snap.MarkScanned, snap.MarkFreed)
	}
}

func TestMetricsQueueDepthTracksMax(t *testing.T) {
	m := NewMetrics(time.Now())
	m.ObserveQueueDepth(5)
	m.ObserveQueueDepth(12)
	m.ObserveQueueDepth(3)

	snap := m.Snapshot(time.Now())
	if snap.MaxQueueDepth != 12 {
		t.Fatalf("MaxQueueDepth: want 12, got %d", snap.MaxQueueDepth)
	}
	wantAvg := float64(5+12+3) / 3
	if snap.AvgQueueDepth != wantAvg {
		t.Fatalf("AvgQueueDepth: want %f, got %f", wantAvg, snap.AvgQueueDepth)
	}
}

func TestMetricsUptimeFreezesAfterStop(t *testing.T) {
	start := time.Now()
	m := NewMetrics(start)
	stop := start.Add(5 * time.Second)
	m.Stop(stop)

	snap := m.Snapshot(stop.Add(time.Hour))
	if snap.UptimeNs != uint64(5*time.Second) {
		t.Fatalf("UptimeNs: want %d, got %d", uint64(5*time.Second), snap.UptimeNs)
	}
}

func TestNoOpObserverDoesNothing(t *testing.T) {
	var o NoOpObserver
	o.ObserveAlloc(1)
	o.ObserveFree(1)
	o.ObserveMarkPass(1, 1, 1)
	o.ObserveQueueDepth(1)
	o.ObserveFrameFlush(1, 1)
}
