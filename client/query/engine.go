// Package query implements the client-side analytics surface read by a
// capture viewer: frame-range statistics with gap filling, live-object
// enumeration by replay, and the intern dictionary lookups, all served
// directly off the SQLite store the ingestor wrote.
package query

import (
	"github.com/heapcap/heapcap/client/store"
)

// LiveObject is one entry of a get_live_objects replay result.
type LiveObject struct {
	Addr    uint64
	Size    uint32
	Frame   uint64
	TypeID  int64
	StackID int64
}

// FrameStats is the parallel-sequence result of GetFrameStats, one entry
// per frame in [from, to].
type FrameStats struct {
	From, To           uint64
	Allocs             []uint64
	Frees              []uint64
	Size               []int64
	MaxAllocs          uint64
	MaxFrees           uint64
	MaxSize            int64
	HaveSize           bool // false if no FrameStats row exists in range at all
}

// ProgressFunc is polled once per replayed event during GetLiveObjects.
// Returning false cancels the replay.
type ProgressFunc func(processed, total int64) bool

// Engine answers analytics queries against a capture store. It caches
// the type/call-stack intern dictionaries in memory, populated at
// construction and refreshed with Refresh after further ingestion.
type Engine struct {
	store *store.Store

	types  map[int64]string
	stacks map[int64]string
}

// New builds an Engine over s, loading the current intern dictionaries.
func New(s *store.Store) (*Engine, error) {
	e := &Engine{store: s}
	if err := e.Refresh(); err != nil {
		return nil, err
	}
	return e, nil
}

// Refresh reloads the intern dictionaries from the store. Call this
// after a live capture has ingested new frames and a caller wants
// GetTypeName/GetCallstack to see newly-interned names.
func (e *Engine) Refresh() error {
	types, err := e.store.Types()
	if err != nil {
		return err
	}
	stacks, err := e.store.Callstacks()
	if err != nil {
		return err
	}
	e.types = types
	e.stacks = stacks
	return nil
}

// GetFrameBoundaries returns the inclusive (min, max) frame range
// covered by the store. ok is false if the store has no events yet.
func (e *Engine) GetFrameBoundaries() (min, max uint64, ok bool, err error) {
	return e.store.MinMaxFrame()
}

// GetTypeName returns the interned name for typeID, or "" if unknown.
func (e *Engine) GetTypeName(typeID int64) string {
	return e.types[typeID]
}

// GetCallstack returns the interned call-stack text for stackID, or ""
// if unknown.
func (e *Engine) GetCallstack(stackID int64) string {
	return e.stacks[stackID]
}

// GetFrameStats returns per-frame (allocs, frees, size) for every frame
// in [from, to], gap-filling frames with no recorded FrameStats row:
// memory size is piecewise-constant through a gap (carried forward from
// the last known row, or 0 if none precedes the range), while allocs and
// frees are 0 in a gap.
func (e *Engine) GetFrameStats(from, to uint64) (*FrameStats, error) {
	n := int(to-from) + 1
	res := &FrameStats{
		From: from, To: to,
		Allocs: make([]uint64, n),
		Frees:  make([]uint64, n),
		Size:   make([]int64, n),
	}

	lastKnown, ok, err := e.store.LastGoodSize(from)
	if err != nil {
		return nil, err
	}
	var running int64
	if ok {
		running = lastKnown
	}

	rows, err := e.store.FrameStatsRange(from, to)
	if err != nil {
		return nil, err
	}

	rowIdx := 0
	for f := from; f <= to; f++ {
		i := int(f - from)
		if rowIdx < len(rows) && rows[rowIdx].Frame == f {
			row := rows[rowIdx]
			res.Allocs[i] = row.Allocs
			res.Frees[i] = row.Frees
			res.Size[i] = row.Size
			running = row.Size
			res.HaveSize = true
			rowIdx++
		} else {
			res.Allocs[i] = 0
			res.Frees[i] = 0
			res.Size[i] = running
		}

		if res.Allocs[i] > res.MaxAllocs {
			res.MaxAllocs = res.Allocs[i]
		}
		if res.Frees[i] > res.MaxFrees {
			res.MaxFrees = res.Frees[i]
		}
		if res.HaveSize && res.Size[i] > res.MaxSize {
			res.MaxSize = res.Size[i]
		}
	}

	return res, nil
}

// GetLiveObjects replays Events in [from, to] in frame order, tracking
// surviving allocations in an address-keyed map, and returns the
// survivors. progress is polled once per event with (processed, total);
// if it returns false the replay stops, the partial state is discarded
// and GetLiveObjects returns an empty slice with a nil error, since
// cancellation is not a failure.
func (e *Engine) GetLiveObjects(from, to uint64, progress ProgressFunc) ([]LiveObject, error) {
	total, err := e.store.EventsCount(from, to)
	if err != nil {
		return nil, err
	}

	events, err := e.store.Events(from, to)
	if err != nil {
		return nil, err
	}

	live := make(map[uint64]LiveObject)
	var processed int64
	for _, ev := range events {
		processed++
		switch ev.Kind {
		case store.EventAlloc:
			live[ev.Address] = LiveObject{
				Addr:    ev.Address,
				Size:    uint32(ev.Size.Int64),
				Frame:   ev.Frame,
				TypeID:  ev.TypeID.Int64,
				StackID: ev.CallstackID.Int64,
			}
		case store.EventFree:
			delete(live, ev.Address)
		}

		if progress != nil && !progress(processed, total) {
			return []LiveObject{}, nil
		}
	}

	out := make([]LiveObject, 0, len(live))
	for _, o := range live {
		out = append(out, o)
	}
	return out, nil
}
