// Package mark implements the server-side conservative mark-and-sweep
// reachability scanner: given the live-allocation table, the registered
// root ranges, and a fault-tolerant memory reader, it determines which
// objects are still reachable and answers reference-chain queries.
package mark

import (
	"github.com/heapcap/heapcap/internal/interfaces"
	"github.com/heapcap/heapcap/internal/track"
)

// Config tunes the scanner.
type Config struct {
	// StepBytes is the scan stride through object bodies and root ranges.
	// Defaults to 8 (pointer alignment on a 64-bit host); spec.md leaves
	// this open for adapters whose target process uses a different word
	// size.
	StepBytes uint64
}

// DefaultConfig returns the pointer-aligned default.
func DefaultConfig() Config {
	return Config{StepBytes: 8}
}

// FreeFunc is called for every object the sweep phase determines is no
// longer reachable, so the caller can emit the corresponding synthetic
// FREE event downstream.
type FreeFunc func(addr uint64, size uint32, class interfaces.ClassHandle)

// Engine runs mark-and-sweep passes against one Table.
type Engine struct {
	cfg         Config
	lastGCFrame uint64
	haveLastGC  bool
}

// NewEngine returns an Engine with the given config.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// LastGCFrame reports the frame of the most recently completed mark pass,
// and whether one has run yet.
func (e *Engine) LastGCFrame() (frame uint64, ok bool) {
	return e.lastGCFrame, e.haveLastGC
}

// DoGC runs one mark pass over table at frame, using roots as the scan
// roots and reader for fault-tolerant memory access. Caller must hold
// table's lock for the duration of this call.
//
// When onlyUpdateParents is true the sweep step is skipped: flags and
// parent edges are recomputed (needed before answering a REFERENCES
// query so the answer reflects current reachability) but nothing is
// freed. Otherwise unreached entries are swept and reported via onFree.
func (e *Engine) DoGC(table *track.Table, roots *RootSet, frame uint64, onlyUpdateParents bool, reader *SafeReader, onFree FreeFunc) {
	// 1. Clear flags and parent edges from the previous pass.
	table.Range(func(a *track.Allocation) {
		a.Flags &^= track.FlagAllocated | track.FlagVisited | track.FlagRoot
		a.Parents = a.Parents[:0]
	})

	rootSnapshot := roots.Snapshot()
	stepBytes := e.cfg.StepBytes
	if stepBytes == 0 {
		stepBytes = 8
	}

	// 2. Seed: scan each root range's body, marking any pointed-to
	// allocation as reachable and flagging it as a root object.
	var worklist []uint64
	seed := func(from uint64, length uint64) {
		for off := uint64(0); off+8 <= length; off += stepBytes {
			word, ok := reader.ReadWord(from + off)
			if !ok {
				continue
			}
			if a, ok := table.Get(word); ok && a.Flags&track.FlagAllocated == 0 {
				a.Flags |= track.FlagAllocated | track.FlagRoot
				worklist = append(worklist, word)
			}
		}
	}
	for _, r := range rootSnapshot {
		seed(uint64(r.Start), r.Length)
	}

	// 3. Transitive closure: scan each newly reached object's own body,
	// recording parent edges and growing the worklist.
	for len(worklist) > 0 {
		addr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		obj, ok := table.Get(addr)
		if !ok {
			continue
		}
		for off := uint64(0); off+8 <= uint64(obj.Size); off += stepBytes {
			word, ok := reader.ReadWord(addr + off)
			if !ok {
				continue
			}
			child, ok := table.Get(word)
			if !ok {
				continue
			}
			child.Parents = append(child.Parents, addr)
			if child.Flags&track.FlagAllocated == 0 {
				child.Flags |= track.FlagAllocated
				worklist = append(worklist, word)
			}
		}
	}

	// 4. Sweep: anything left without FlagAllocated was unreachable.
	if !onlyUpdateParents {
		var dead []uint64
		table.Range(func(a *track.Allocation) {
			if a.Flags&track.FlagAllocated == 0 {
				dead = append(dead, a.Addr)
			}
		})
		for _, addr := range dead {
			a, ok := table.Get(addr)
			if !ok {
				continue
			}
			if onFree != nil {
				onFree(a.Addr, a.Size, a.Class)
			}
			table.DeleteUnlocked(addr)
		}
	}

	// 5. Record the frame this pass covered.
	e.lastGCFrame = frame
	e.haveLastGC = true
}
