// Package ingest implements the client-side event ingestor: a single
// consumer that buckets incoming ALLOC/FREE events by frame, interns
// type names and call-stack text, and commits each frame's events to the
// store in one transaction.
package ingest

import (
	"database/sql"
	"fmt"

	"github.com/heapcap/heapcap"
	"github.com/heapcap/heapcap/client/store"
	"github.com/heapcap/heapcap/internal/constants"
	"github.com/heapcap/heapcap/internal/interfaces"
)

// internEntry is a newly-assigned intern id awaiting its first flush.
type internEntry struct {
	id   int64
	text string
}

// pendingEvent is one buffered event awaiting its frame's flush.
type pendingEvent struct {
	isFree      bool
	addr        uint64
	size        uint32
	frame       uint64
	typeID      int64
	callstackID int64
}

// Summary is the (min_frame, max_frame) pair of the frames this Ingestor
// has flushed, updated on every flush. The query engine's
// GetFrameBoundaries does not read it; it queries the store instead.
type Summary struct {
	MinFrame, MaxFrame uint64
	HasData            bool
}

// Ingestor is the single-consumer frame-bucketing/intern/batch pipeline
// described by the wire protocol's ALLOC/FREE stream. It is not safe for
// concurrent use: the owning transport-consumer goroutine is the only
// caller.
type Ingestor struct {
	db *sql.DB

	prevFrame uint64
	haveFrame bool

	pending     []pendingEvent
	frameAllocs uint64
	frameFrees  uint64
	sizeRunning int64

	typeIntern  map[string]int64
	stackIntern map[string]int64
	nextTypeID  int64
	nextStackID int64

	newTypes  []internEntry
	newStacks []internEntry

	summary Summary

	observer interfaces.Observer
}

// New returns an Ingestor writing into s. observer may be nil.
func New(s *store.Store, observer interfaces.Observer) *Ingestor {
	if observer == nil {
		observer = noopObserver{}
	}
	ing := &Ingestor{
		db:          s.DB(),
		pending:     make([]pendingEvent, 0, constants.PendingReserve),
		typeIntern:  make(map[string]int64),
		stackIntern: make(map[string]int64),
		nextTypeID:  1,
		nextStackID: 1,
		observer:    observer,
	}
	return ing
}

type noopObserver struct{}

func (noopObserver) ObserveAlloc(uint64)              {}
func (noopObserver) ObserveFree(uint64)               {}
func (noopObserver) ObserveMarkPass(uint64, int, int) {}
func (noopObserver) ObserveQueueDepth(uint32)         {}
func (noopObserver) ObserveFrameFlush(int, uint64)    {}

// Summary returns the cached frame-boundary summary.
func (ing *Ingestor) Summary() Summary { return ing.summary }

// Alloc records an ALLOC event, flushing the previous frame first if
// frame has advanced. Returns a *heapcap-style frame-order error if frame
// regresses.
func (ing *Ingestor) Alloc(frame, addr uint64, size uint32, typeName, callStack string) error {
	if err := ing.rollFrame(frame); err != nil {
		return err
	}

	typeID := ing.internType(typeName)
	stackID := ing.internStack(callStack)

	ing.pending = append(ing.pending, pendingEvent{
		addr: addr, size: size, frame: frame,
		typeID: typeID, callstackID: stackID,
	})
	ing.frameAllocs++
	ing.sizeRunning += int64(size)
	ing.observer.ObserveAlloc(uint64(size))

	return ing.flushIfOverThreshold()
}

// Free records a FREE event. FREE carries no type or call stack.
func (ing *Ingestor) Free(frame, addr uint64, size uint32) error {
	if err := ing.rollFrame(frame); err != nil {
		return err
	}

	ing.pending = append(ing.pending, pendingEvent{
		isFree: true, addr: addr, size: size, frame: frame,
	})
	ing.frameFrees++
	ing.sizeRunning -= int64(size)
	ing.observer.ObserveFree(uint64(size))

	return ing.flushIfOverThreshold()
}

// rollFrame flushes the previous frame's batch if frame is new, and
// rejects frame regression as stream corruption.
func (ing *Ingestor) rollFrame(frame uint64) error {
	if ing.haveFrame {
		if frame < ing.prevFrame {
			return heapcap.NewError("Ingestor.rollFrame", heapcap.KindFrameOrder,
				fmt.Sprintf("frame went backwards: %d after %d", frame, ing.prevFrame))
		}
		if frame != ing.prevFrame {
			if err := ing.flush(); err != nil {
				return err
			}
			ing.frameAllocs = 0
			ing.frameFrees = 0
		}
	}
	ing.prevFrame = frame
	ing.haveFrame = true
	return nil
}

func (ing *Ingestor) flushIfOverThreshold() error {
	if len(ing.pending) > constants.FlushThreshold {
		return ing.flush()
	}
	return nil
}

// Drain flushes any buffered events. Called on transport drain
// completion (end of capture) so the final frame's events are never left
// unpersisted.
func (ing *Ingestor) Drain() error {
	return ing.flush()
}

func (ing *Ingestor) flush() error {
	if len(ing.pending) == 0 {
		ing.resetCounters()
		return nil
	}

	tx, err := ing.db.Begin()
	if err != nil {
		return heapcap.NewError("Ingestor.flush", heapcap.KindStore, fmt.Sprintf("begin: %v", err))
	}

	for _, e := range ing.pending {
		if e.isFree {
			if err := store.InsertFreeEvent(tx, e.frame, e.addr, uint64(e.size)); err != nil {
				tx.Rollback()
				return heapcap.NewError("Ingestor.flush", heapcap.KindStore, fmt.Sprintf("insert free: %v", err))
			}
			continue
		}
		if err := store.InsertAllocEvent(tx, e.frame, e.addr, uint64(e.size), e.typeID, e.callstackID); err != nil {
			tx.Rollback()
			return heapcap.NewError("Ingestor.flush", heapcap.KindStore, fmt.Sprintf("insert alloc: %v", err))
		}
	}

	if err := store.InsertFrameStats(tx, ing.prevFrame, ing.frameAllocs, ing.frameFrees, ing.sizeRunning); err != nil {
		tx.Rollback()
		return heapcap.NewError("Ingestor.flush", heapcap.KindStore, fmt.Sprintf("insert frame stats: %v", err))
	}

	if err := ing.flushInternTables(tx); err != nil {
		tx.Rollback()
		return heapcap.WrapError("Ingestor.flush", err)
	}

	if err := tx.Commit(); err != nil {
		return heapcap.NewError("Ingestor.flush", heapcap.KindStore, fmt.Sprintf("commit: %v", err))
	}
	ing.newTypes = ing.newTypes[:0]
	ing.newStacks = ing.newStacks[:0]

	ing.observer.ObserveFrameFlush(len(ing.pending), 0)
	ing.updateSummary(ing.prevFrame)
	ing.resetCounters()
	return nil
}

// flushInternTables persists only the intern entries assigned since the
// previous flush. It does not clear ing.newTypes/ing.newStacks itself:
// that only happens once the caller's transaction actually commits, so a
// failed or rolled-back flush retries the same entries next time.
func (ing *Ingestor) flushInternTables(tx *sql.Tx) error {
	for _, e := range ing.newTypes {
		if err := store.InsertType(tx, e.id, e.text); err != nil {
			return fmt.Errorf("ingest: insert type: %w", err)
		}
	}
	for _, e := range ing.newStacks {
		if err := store.InsertCallstack(tx, e.id, e.text); err != nil {
			return fmt.Errorf("ingest: insert callstack: %w", err)
		}
	}
	return nil
}

// resetCounters clears the pending buffer after a flush. The per-frame
// alloc/free counters are cleared by rollFrame when the frame changes, not
// here, so a threshold flush in the middle of a frame keeps counting that
// frame and its FrameStats row is rewritten with the full counts.
// ing.sizeRunning is never reset: FrameStats.size is a capture-wide
// cumulative running total (spec: size[f] = size[f-1] + Σalloc - Σfree
// over frame f), so it must keep accumulating across flushes rather than
// restart at zero each frame.
func (ing *Ingestor) resetCounters() {
	ing.pending = ing.pending[:0]
}

func (ing *Ingestor) updateSummary(frame uint64) {
	if !ing.summary.HasData {
		ing.summary = Summary{MinFrame: frame, MaxFrame: frame, HasData: true}
		return
	}
	if frame < ing.summary.MinFrame {
		ing.summary.MinFrame = frame
	}
	if frame > ing.summary.MaxFrame {
		ing.summary.MaxFrame = frame
	}
}

func (ing *Ingestor) internType(name string) int64 {
	if id, ok := ing.typeIntern[name]; ok {
		return id
	}
	id := ing.nextTypeID
	ing.nextTypeID++
	ing.typeIntern[name] = id
	ing.newTypes = append(ing.newTypes, internEntry{id: id, text: name})
	return id
}

func (ing *Ingestor) internStack(text string) int64 {
	if id, ok := ing.stackIntern[text]; ok {
		return id
	}
	id := ing.nextStackID
	ing.nextStackID++
	ing.stackIntern[text] = id
	ing.newStacks = append(ing.newStacks, internEntry{id: id, text: text})
	return id
}
