package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/heapcap/heapcap/internal/interfaces"
)

type allocRecord struct {
	frame, addr        uint64
	size               uint32
	typeName, callStack string
}

type freeRecord struct {
	frame, addr uint64
	size        uint32
}

type recordingSink struct {
	mu     sync.Mutex
	allocs []allocRecord
	frees  []freeRecord
}

func (s *recordingSink) EmitAlloc(frame, addr uint64, size uint32, typeName, callStack string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocs = append(s.allocs, allocRecord{frame, addr, size, typeName, callStack})
}

func (s *recordingSink) EmitFree(frame, addr uint64, size uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frees = append(s.frees, freeRecord{frame, addr, size})
}

type nopAdapter struct{}

func (nopAdapter) Resolve(string) (uintptr, error)                    { return 0, nil }
func (nopAdapter) InstallAllocCallback(interfaces.AllocCallback) error { return nil }
func (nopAdapter) InstallGCCallback(interfaces.GCCallback) error       { return nil }
func (nopAdapter) InstallRootCallback(interfaces.RootCallback) error   { return nil }
func (nopAdapter) WalkStack(interfaces.ObjectHandle) []interfaces.MethodHandle {
	return nil
}
func (nopAdapter) ObjectSize(interfaces.ObjectHandle) uint32 { return 0 }
func (nopAdapter) ClassName(interfaces.ClassHandle) string   { return "Foo.Bar" }
func (nopAdapter) MethodName(interfaces.MethodHandle) string { return "Foo.Update" }
func (nopAdapter) ReadMemory(addr uint64, length int) ([]byte, bool) {
	return make([]byte, length), true
}

func TestWorkerProcessesAllocations(t *testing.T) {
	sink := &recordingSink{}
	w := New(DefaultConfig(), nopAdapter{}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	if err := w.Enqueue(ctx, WorkItem{Frame: 1, Addr: 0x1000, Size: 48}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for w.Table().Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	if w.Table().Len() != 1 {
		t.Fatalf("Table.Len: want 1, got %d", w.Table().Len())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.allocs) != 1 || sink.allocs[0].addr != 0x1000 {
		t.Fatalf("allocs: want one at 0x1000, got %+v", sink.allocs)
	}
	if sink.allocs[0].typeName != "Foo.Bar" {
		t.Fatalf("typeName: want Foo.Bar, got %q", sink.allocs[0].typeName)
	}
	if sink.allocs[0].callStack != "<no stack>" {
		t.Fatalf("callStack: want <no stack>, got %q", sink.allocs[0].callStack)
	}
}

func TestWorkerReallocationEmitsSyntheticFree(t *testing.T) {
	sink := &recordingSink{}
	w := New(DefaultConfig(), nopAdapter{}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Enqueue(ctx, WorkItem{Frame: 1, Addr: 0x1000, Size: 48})
	w.Enqueue(ctx, WorkItem{Frame: 2, Addr: 0x1000, Size: 56})

	deadline := time.Now().Add(time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.frees)
		sink.mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.frees) != 1 || sink.frees[0].size != 48 {
		t.Fatalf("want one synthetic free at size 48, got %+v", sink.frees)
	}
	if len(sink.allocs) != 2 {
		t.Fatalf("want two allocs recorded, got %d", len(sink.allocs))
	}
}

func TestWorkerPassesNonMatchingStack(t *testing.T) {
	sink := &recordingSink{}
	w := New(DefaultConfig(), nopAdapter{}, sink) // nopAdapter.MethodName returns "Foo.Update", no stopword match

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Enqueue(ctx, WorkItem{Frame: 1, Addr: 0x2000, Size: 8, Stack: []interfaces.MethodHandle{1}})

	time.Sleep(20 * time.Millisecond)
	if w.Table().Len() != 1 {
		t.Fatalf("non-matching stack was dropped: Table.Len = %d", w.Table().Len())
	}
}

type stopwordAdapter struct{ nopAdapter }

func (stopwordAdapter) MethodName(interfaces.MethodHandle) string { return "FPSCounter.Tick" }

func TestWorkerDropsStopwordMatchedAllocation(t *testing.T) {
	sink := &recordingSink{}
	w := New(DefaultConfig(), stopwordAdapter{}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Enqueue(ctx, WorkItem{Frame: 1, Addr: 0x3000, Size: 8, Stack: []interfaces.MethodHandle{1}})

	time.Sleep(20 * time.Millisecond)
	if w.Table().Len() != 0 {
		t.Fatalf("stopword-matched allocation was not dropped: Table.Len = %d", w.Table().Len())
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.allocs) != 0 {
		t.Fatalf("stopword-matched allocation was reported: %+v", sink.allocs)
	}
}
