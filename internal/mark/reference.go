package mark

import "github.com/heapcap/heapcap/internal/track"

// ReferenceEntry answers one requested address: its current type name
// (annotated the way the original instrumentation does, " (Root)" or
// " (Deleted)" suffixes) and the addresses of everything that directly
// references it.
type ReferenceEntry struct {
	Addr    uint64
	Type    string
	Parents []uint64
}

// ClassNamer resolves a class handle to a display name, supplied by the
// Adapter.
type ClassNamer func(track.Allocation) string

// FindReferences answers a REFERENCES query for addrs as of frame. If the
// table hasn't been marked since frame (engine.LastGCFrame() < frame), it
// first runs a parents-only mark pass so the edges reflect current
// reachability. Caller must hold table's lock for the duration of this
// call.
//
// Unlike the instrumentation this was ported from, FlagVisited is cleared
// on every entry at the start of each query rather than left sticky
// across calls, so repeated queries can't silently short-circuit on
// stale visitation state from a previous one.
func FindReferences(table *track.Table, engine *Engine, roots *RootSet, reader *SafeReader, frame uint64, addrs []uint64, namer ClassNamer) []ReferenceEntry {
	if last, ok := engine.LastGCFrame(); !ok || frame > last {
		engine.DoGC(table, roots, frame, true, reader, nil)
	}

	table.Range(func(a *track.Allocation) {
		a.Flags &^= track.FlagVisited
	})

	var results []ReferenceEntry
	for _, start := range addrs {
		if obj, ok := table.Get(start); ok {
			if obj.Flags&track.FlagVisited != 0 {
				continue
			}
			obj.Flags |= track.FlagVisited
		}
		queue := []uint64{start}
		for len(queue) > 0 {
			addr := queue[0]
			queue = queue[1:]

			obj, ok := table.Get(addr)
			entry := ReferenceEntry{Addr: addr}
			if !ok {
				entry.Type = "(Deleted)"
				results = append(results, entry)
				continue
			}

			name := namer(*obj)
			if obj.Flags&track.FlagRoot != 0 {
				name += " (Root)"
			}
			if obj.Flags&track.FlagAllocated == 0 {
				name += " (Deleted)"
			}
			entry.Type = name
			entry.Parents = append(entry.Parents, obj.Parents...)
			results = append(results, entry)

			for _, p := range obj.Parents {
				if parent, ok := table.Get(p); ok {
					if parent.Flags&track.FlagVisited != 0 {
						continue
					}
					parent.Flags |= track.FlagVisited
				}
				queue = append(queue, p)
			}
		}
	}
	return results
}
