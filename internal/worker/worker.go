// Package worker runs the server's allocation-processing goroutine: it
// drains the mutator-to-worker queue, applies each allocation to the live
// table (synthesizing FREE events on reallocation), and exposes the
// synchronous mark-and-sweep and reference-query entry points that run
// directly on whatever goroutine a control-plane request arrives on.
package worker

import (
	"context"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"golang.org/x/sys/unix"

	"github.com/heapcap/heapcap/internal/interfaces"
	"github.com/heapcap/heapcap/internal/mark"
	"github.com/heapcap/heapcap/internal/track"
)

// WorkItem is the only thing that crosses the mutator-to-worker queue:
// every other control-plane operation (GC, pause, resume, find
// references) is a direct synchronous call against the table instead,
// matching the instrumentation this was ported from.
type WorkItem struct {
	Frame uint64
	Addr  uint64
	Size  uint32
	Class interfaces.ClassHandle
	Stack []interfaces.MethodHandle
}

// Sink receives the events the worker produces: real ALLOCs as they're
// applied, with type name and call-stack text already resolved, and
// synthetic FREEs implied by reallocation or by a sweep.
type Sink interface {
	EmitAlloc(frame, addr uint64, size uint32, typeName, callStack string)
	EmitFree(frame, addr uint64, size uint32)
}

// Config tunes the worker's queue and scan behavior.
type Config struct {
	QueueCapacity int
	MarkConfig    mark.Config
	// CPUAffinity pins the processing goroutine's OS thread to this CPU.
	// Negative means no pinning.
	CPUAffinity int
	// Stopwords holds call-stack substrings that cause an allocation to
	// be dropped entirely rather than reported, matching the engine-noise
	// filter the instrumentation applies.
	Stopwords []string
}

// DefaultConfig returns a queue capacity and scan stride suitable for
// most targets, with no CPU pinning and the built-in stopword list.
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 8192,
		MarkConfig:    mark.DefaultConfig(),
		CPUAffinity:   -1,
		Stopwords:     DefaultStopwords(),
	}
}

// Worker owns the live-allocation table and drains the MPSC queue that
// every mutator allocation callback feeds.
type Worker struct {
	cfg     Config
	queue   lfq.Queue[WorkItem]
	table   *track.Table
	roots   *mark.RootSet
	engine  *mark.Engine
	reader  *mark.SafeReader
	adapter interfaces.Adapter
	sink    Sink

	queueEmpty atomic.Bool
}

// New returns a Worker resolving class and method names through adapter.
func New(cfg Config, adapter interfaces.Adapter, sink Sink) *Worker {
	w := &Worker{
		cfg:     cfg,
		queue:   lfq.NewMPSC[WorkItem](cfg.QueueCapacity),
		table:   track.NewTable(),
		roots:   mark.NewRootSet(),
		engine:  mark.NewEngine(cfg.MarkConfig),
		reader:  mark.NewSafeReader(adapter),
		adapter: adapter,
		sink:    sink,
	}
	w.queueEmpty.Store(true)
	return w
}

// Table returns the live-allocation table, for callers that need direct
// read access (e.g. the query-side reference answer formatting).
func (w *Worker) Table() *track.Table { return w.table }

// Roots returns the root set, mutated by the adapter's root callback.
func (w *Worker) Roots() *mark.RootSet { return w.roots }

// Enqueue pushes an allocation onto the work queue, retrying with
// backoff while the queue is full. Called from the mutator's allocation
// callback; must not block indefinitely, callers should pass a context
// tied to the profiler's lifetime.
func (w *Worker) Enqueue(ctx context.Context, item WorkItem) error {
	w.queueEmpty.Store(false)
	backoff := iox.Backoff{}
	for {
		if err := w.queue.Enqueue(&item); err == nil {
			backoff.Reset()
			return nil
		} else if !lfq.IsWouldBlock(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		backoff.Wait()
	}
}

// Run drains the work queue until ctx is cancelled. Intended to run on
// its own goroutine for the lifetime of the server.
func (w *Worker) Run(ctx context.Context) {
	if w.cfg.CPUAffinity >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		var set unix.CPUSet
		set.Zero()
		set.Set(w.cfg.CPUAffinity)
		_ = unix.SchedSetaffinity(0, &set)
	}

	backoff := iox.Backoff{}
	for {
		select {
		case <-ctx.Done():
			w.drainRemaining()
			return
		default:
		}

		item, err := w.queue.Dequeue()
		if err != nil {
			if lfq.IsWouldBlock(err) {
				w.queueEmpty.Store(true)
				backoff.Wait()
				continue
			}
			// Non-wouldblock errors from a bounded MPSC queue indicate the
			// queue was closed out from under us; nothing left to drain.
			return
		}
		backoff.Reset()
		w.process(item)
	}
}

// drainRemaining flushes whatever is left in the queue on shutdown. The
// queue's threshold mechanism can otherwise report spurious ErrWouldBlock
// while items remain, so shutdown switches it into drain mode first.
func (w *Worker) drainRemaining() {
	if d, ok := w.queue.(lfq.Drainer); ok {
		d.Drain()
	}
	for {
		item, err := w.queue.Dequeue()
		if err != nil {
			return
		}
		w.process(item)
	}
}

// process resolves an item's class and call-stack text, drops it if any
// frame matches a stopword, and otherwise applies it to the table and
// reports it to the sink.
func (w *Worker) process(item WorkItem) {
	var sb strings.Builder
	for _, m := range item.Stack {
		frame := formatFrame(w.adapter.MethodName(m))
		if matchesStopword(frame, w.cfg.Stopwords) {
			return
		}
		sb.WriteString(frame)
	}
	stackText := sb.String()
	if len(item.Stack) == 0 {
		stackText = "<no stack>"
	}

	className := w.adapter.ClassName(item.Class)

	res := w.table.Put(item.Addr, item.Size, item.Class, item.Frame, item.Stack)
	if res.Reallocated {
		w.sink.EmitFree(item.Frame, item.Addr, res.Prev.Size)
	}
	w.sink.EmitAlloc(item.Frame, item.Addr, item.Size, className, stackText)
}

// waitForDrain spins until the queue has reported empty, mirroring the
// original worker's spin-wait before a synchronous GC pass: every
// allocation enqueued before this call must be visible in the table
// before the mark phase runs, to preserve event ordering.
func (w *Worker) waitForDrain() {
	for !w.queueEmpty.Load() {
		time.Sleep(time.Microsecond)
	}
}

// DoGCSync runs a synchronous mark-and-sweep pass at frame. It first
// drains the work queue so every allocation ordered before this call is
// reflected in the table, then locks the table for the scan itself.
func (w *Worker) DoGCSync(frame uint64) {
	w.waitForDrain()
	w.table.Lock()
	defer w.table.Unlock()
	w.engine.DoGC(w.table, w.roots, frame, false, w.reader, func(addr uint64, size uint32, class interfaces.ClassHandle) {
		w.sink.EmitFree(frame, addr, size)
	})
}

// FindReferences answers a REFERENCES query as of frame, draining the
// queue first only if a mark pass is actually needed (frame newer than
// the last completed GC).
func (w *Worker) FindReferences(frame uint64, addrs []uint64, namer mark.ClassNamer) []mark.ReferenceEntry {
	if last, ok := w.engine.LastGCFrame(); !ok || frame > last {
		w.waitForDrain()
	}
	w.table.Lock()
	defer w.table.Unlock()
	return mark.FindReferences(w.table, w.engine, w.roots, w.reader, frame, addrs, namer)
}
